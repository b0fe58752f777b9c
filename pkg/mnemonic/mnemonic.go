// Package mnemonic derives Ethereum keys from BIP-39 seed phrases along BIP-32/BIP-44 paths.
package mnemonic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/tyler-smith/go-bip39"

	"github.com/scrogson/walle/pkg/key"
)

// DefaultPath is the first account of the standard Ethereum derivation tree.
const DefaultPath = "m/44'/60'/0'/0/0"

var (
	// ErrInvalidMnemonic is returned for unknown words, wrong word counts and checksum mismatches.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	// ErrInvalidPath is returned when a derivation path cannot be parsed.
	ErrInvalidPath = errors.New("invalid derivation path")
)

// AccountPath returns the default path with the last component replaced by index.
func AccountPath(index uint32) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}

// Normalize lower-cases the phrase and collapses whitespace to single spaces.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Validate checks the phrase words and checksum against the English wordlist.
func Validate(phrase string) error {
	if _, err := bip39.EntropyFromMnemonic(Normalize(phrase)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return nil
}

// New creates a fresh phrase from the given amount of entropy (128, 160, 192, 224 or 256 bits).
func New(bits int) (string, error) {
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("failed to create entropy: %w", err)
	}
	defer key.Zeroize(entropy)

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to create mnemonic: %w", err)
	}
	return phrase, nil
}

// FromPhrase derives the key at path from phrase. An empty path selects DefaultPath and an
// empty passphrase is the BIP-39 default. The same inputs always yield the same key.
func FromPhrase(phrase, path, passphrase string) (*key.PrivateKey, error) {
	if path == "" {
		path = DefaultPath
	}
	indices, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	seed, err := bip39.NewSeedWithErrorChecking(Normalize(phrase), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer key.Zeroize(seed)

	extKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	for _, index := range indices {
		child, err := extKey.Derive(index)
		extKey.Zero()
		if err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}
		extKey = child
	}
	defer extKey.Zero()

	priv, err := extKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to extract private key: %w", err)
	}
	defer priv.Zero()

	secret := priv.Serialize()
	defer key.Zeroize(secret)

	return key.FromBytes(secret)
}
