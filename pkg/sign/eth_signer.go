package sign

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/scrogson/walle/pkg/key"
)

var (
	_ Signer           = (*EthereumSigner)(nil)
	_ AddressRecoverer = (*EthereumAddressRecoverer)(nil)
	_ PublicKey        = EthereumPublicKey{}
	_ Address          = EthereumAddress{}
)

// EthereumAddress is a checksummed account address.
type EthereumAddress struct{ common.Address }

func (a EthereumAddress) String() string { return a.Address.Hex() }

// NewEthereumAddress wraps a common.Address.
func NewEthereumAddress(addr common.Address) EthereumAddress {
	return EthereumAddress{addr}
}

// Equals compares by value, falling back to the textual form for foreign implementations.
func (a EthereumAddress) Equals(other Address) bool {
	if otherAddr, ok := other.(EthereumAddress); ok {
		return a.Address == otherAddr.Address
	}
	return a.String() == other.String()
}

// EthereumPublicKey is an uncompressed secp256k1 public key.
type EthereumPublicKey struct{ *ecdsa.PublicKey }

func (p EthereumPublicKey) Address() Address {
	return EthereumAddress{ethcrypto.PubkeyToAddress(*p.PublicKey)}
}

// Bytes returns the 65-byte uncompressed encoding.
func (p EthereumPublicKey) Bytes() []byte { return ethcrypto.FromECDSAPub(p.PublicKey) }

// NewEthereumPublicKeyFromBytes parses a 65-byte uncompressed public key.
func NewEthereumPublicKeyFromBytes(pubBytes []byte) (EthereumPublicKey, error) {
	pub, err := ethcrypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return EthereumPublicKey{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	return EthereumPublicKey{pub}, nil
}

// EthereumSigner signs digests with a private key it holds for its whole lifetime.
type EthereumSigner struct {
	key       *key.PrivateKey
	publicKey EthereumPublicKey
}

// NewEthereumSigner wraps an existing key. The signer does not copy it.
func NewEthereumSigner(k *key.PrivateKey) *EthereumSigner {
	return &EthereumSigner{key: k, publicKey: EthereumPublicKey{k.PublicKey()}}
}

// NewEthereumSignerFromHex parses a hex private key, with or without 0x.
func NewEthereumSignerFromHex(privateKeyHex string) (*EthereumSigner, error) {
	k, err := key.FromHex(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("could not parse ethereum private key: %w", err)
	}
	return NewEthereumSigner(k), nil
}

func (s *EthereumSigner) PublicKey() PublicKey { return s.publicKey }

// Sign expects a 32-byte digest.
func (s *EthereumSigner) Sign(hash []byte) (Signature, error) {
	return Sign(hash, s.key)
}

// Close wipes the underlying key.
func (s *EthereumSigner) Close() {
	s.key.Zero()
}

// EthereumAddressRecoverer recovers signers of personal messages.
type EthereumAddressRecoverer struct{}

// RecoverAddress applies TextHash to message before recovery.
func (r *EthereumAddressRecoverer) RecoverAddress(message []byte, signature Signature) (Address, error) {
	addr, err := RecoverMessage(message, signature)
	if err != nil {
		return nil, err
	}
	return EthereumAddress{addr}, nil
}
