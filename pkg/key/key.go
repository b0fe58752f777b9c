// Package key holds secp256k1 private key material and the Ethereum address derived from it.
//
// A PrivateKey is created once (generated, imported, derived or decrypted) and is read-only
// afterwards. The scalar is only lent out for the duration of a single operation through Use,
// and callers that are done with a key should call Zero.
package key

import (
	"crypto/ecdsa"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Size is the length in bytes of a serialized private key.
const Size = 32

// ErrInvalidKey is returned when a secret is malformed or outside the range [1, N).
var ErrInvalidKey = errors.New("invalid private key")

// PrivateKey is an opaque secp256k1 private key together with its public key and address.
type PrivateKey struct {
	secret  [Size]byte
	pub     *ecdsa.PublicKey
	address common.Address
}

// Generate draws a uniformly random valid scalar from rand.
// It only fails when rand itself fails.
func Generate(rand io.Reader) (*PrivateKey, error) {
	var buf [Size]byte
	defer Zeroize(buf[:])

	for {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}

		// Rejection sampling keeps the distribution uniform over [1, N).
		k, err := FromBytes(buf[:])
		if errors.Is(err, ErrInvalidKey) {
			continue
		}
		return k, err
	}
}

// FromBytes builds a PrivateKey from a 32-byte big-endian scalar.
// The input slice is copied and never retained.
func FromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, Size, len(b))
	}

	var scalar secp256k1.ModNScalar
	defer scalar.Zero()
	if overflow := scalar.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: scalar is not below the curve order", ErrInvalidKey)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: scalar is zero", ErrInvalidKey)
	}

	priv := secp256k1.NewPrivateKey(&scalar)
	defer priv.Zero()

	uncompressed := priv.PubKey().SerializeUncompressed()
	pub, err := ethcrypto.UnmarshalPubkey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	k := &PrivateKey{
		pub:     pub,
		address: common.BytesToAddress(ethcrypto.Keccak256(uncompressed[1:])[12:]),
	}
	copy(k.secret[:], b)
	return k, nil
}

// FromHex parses a hex encoded 32-byte key, with or without the 0x prefix.
func FromHex(s string) (*PrivateKey, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*Size {
		return nil, fmt.Errorf("%w: expected %d hex characters", ErrInvalidKey, 2*Size)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not a hex string", ErrInvalidKey)
	}
	defer Zeroize(b)

	return FromBytes(b)
}

// Address returns the 20-byte Ethereum address of the key.
func (k *PrivateKey) Address() common.Address { return k.address }

// Checksum returns the EIP-55 mixed-case rendering of the address.
func (k *PrivateKey) Checksum() string { return k.address.Hex() }

// PublicKey returns the public half of the key.
func (k *PrivateKey) PublicKey() *ecdsa.PublicKey {
	pub := *k.pub
	return &pub
}

// Hex exports the scalar as 64 lowercase hex characters without a 0x prefix.
func (k *PrivateKey) Hex() string {
	return hex.EncodeToString(k.secret[:])
}

// Bytes returns a copy of the scalar. Callers own the copy and should Zeroize it.
func (k *PrivateKey) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, k.secret[:])
	return b
}

// Equal reports whether both keys hold the same scalar.
func (k *PrivateKey) Equal(other *PrivateKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.secret[:], other.secret[:]) == 1
}

// Use lends fn an ecdsa view of the key. The view is wiped when fn returns and must not
// escape it.
func (k *PrivateKey) Use(fn func(priv *ecdsa.PrivateKey) error) error {
	priv, err := ethcrypto.ToECDSA(k.secret[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	defer zeroECDSA(priv)

	return fn(priv)
}

// Zero wipes the scalar. The address and public key stay readable.
func (k *PrivateKey) Zero() {
	Zeroize(k.secret[:])
}

// String keeps the scalar out of logs and formatted errors.
func (k *PrivateKey) String() string {
	return fmt.Sprintf("PrivateKey(%s)", k.address.Hex())
}

// GoString covers the %#v verb.
func (k *PrivateKey) GoString() string { return k.String() }

// ChecksumAddress renders a hex address (with or without 0x) in EIP-55 form.
func ChecksumAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address: %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// Zeroize overwrites b with zeros.
func Zeroize(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}

func zeroECDSA(priv *ecdsa.PrivateKey) {
	if priv == nil || priv.D == nil {
		return
	}
	clear(priv.D.Bits())
	runtime.KeepAlive(priv)
}
