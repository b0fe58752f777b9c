package sign

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SignatureLength is the size of r ‖ s ‖ v.
const SignatureLength = 65

// ErrInvalidSignature is returned for malformed signatures and unrecoverable points.
var ErrInvalidSignature = errors.New("invalid signature")

// Signer is an identity able to sign digests.
type Signer interface {
	PublicKey() PublicKey                // Public key associated with this signer.
	Sign(hash []byte) (Signature, error) // Sign signs a 32-byte digest.
}

// AddressRecoverer recovers the address that signed a message.
type AddressRecoverer interface {
	RecoverAddress(message []byte, signature Signature) (Address, error)
}

// PublicKey is the public half of a Signer.
type PublicKey interface {
	Address() Address
	Bytes() []byte
}

// Address is a printable account identifier.
type Address interface {
	fmt.Stringer

	// Equals returns true if this address equals the other address.
	Equals(other Address) bool
}

// Signature is r ‖ s ‖ v.
type Signature []byte

// ParseSignature decodes a hex signature, with or without the 0x prefix.
func ParseSignature(s string) (Signature, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}

	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sig := Signature(raw)
	if err := sig.check(); err != nil {
		return nil, err
	}
	return sig, nil
}

// R returns the r component.
func (s Signature) R() *big.Int { return new(big.Int).SetBytes(s[:32]) }

// S returns the s component.
func (s Signature) S() *big.Int { return new(big.Int).SetBytes(s[32:64]) }

// V returns the recovery byte as stored.
func (s Signature) V() byte { return s[64] }

// IsCanonical reports whether s lies in the lower half of the curve order.
func (s Signature) IsCanonical() bool {
	if len(s) != SignatureLength {
		return false
	}
	var sc secp256k1.ModNScalar
	if overflow := sc.SetByteSlice(s[32:64]); overflow {
		return false
	}
	return !sc.IsOverHalfOrder()
}

// Normalize returns a copy in low-s form. A high s is replaced by N - s and the
// recovery parity is flipped, which recovers the same public key.
func (s Signature) Normalize() (Signature, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	out := make(Signature, SignatureLength)
	copy(out, s)

	var sc secp256k1.ModNScalar
	sc.SetByteSlice(s[32:64])
	if !sc.IsOverHalfOrder() {
		return out, nil
	}

	sc.Negate()
	low := sc.Bytes()
	copy(out[32:64], low[:])
	out[64] = flipParity(out[64])
	return out, nil
}

// check validates length and the r/s ranges.
func (s Signature) check() error {
	if len(s) != SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(s))
	}

	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(s[:32]); overflow || r.IsZero() {
		return fmt.Errorf("%w: r out of range", ErrInvalidSignature)
	}
	if overflow := sc.SetByteSlice(s[32:64]); overflow || sc.IsZero() {
		return fmt.Errorf("%w: s out of range", ErrInvalidSignature)
	}
	return nil
}

// MarshalJSON encodes the signature as a 0x-prefixed hex string.
func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts any 0x-prefixed hex string; length is checked on use.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	decoded, err := hexutil.Decode(hexStr)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Signature) String() string {
	return hexutil.Encode(s)
}

// flipParity toggles the recovery id while keeping the v convention.
func flipParity(v byte) byte {
	switch v {
	case 0, 1:
		return v ^ 1
	case 27:
		return 28
	case 28:
		return 27
	}
	// EIP-155 style: recid = (v - 35) % 2.
	if v >= 35 {
		if (v-35)%2 == 0 {
			return v + 1
		}
		return v - 1
	}
	return v
}
