package sign

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/scrogson/walle/pkg/eip712"
	"github.com/scrogson/walle/pkg/key"
)

// Sign signs a 32-byte digest with RFC 6979 nonces. The result is low-s with v in {27, 28}.
func Sign(hash []byte, k *key.PrivateKey) (Signature, error) {
	if len(hash) != common.HashLength {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", common.HashLength, len(hash))
	}

	var sig []byte
	err := k.Use(func(priv *ecdsa.PrivateKey) error {
		var err error
		sig, err = ethcrypto.Sign(hash, priv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27

	out := Signature(sig)
	if !out.IsCanonical() {
		return out.Normalize()
	}
	return out, nil
}

// SignMessage signs the personal message hash of message.
func SignMessage(message []byte, k *key.PrivateKey) (Signature, error) {
	hash := TextHash(message)
	return Sign(hash.Bytes(), k)
}

// SignTypedData signs the EIP-712 digest of td.
func SignTypedData(td *eip712.TypedData, k *key.PrivateKey) (Signature, error) {
	hash, err := td.Hash()
	if err != nil {
		return nil, err
	}
	return Sign(hash.Bytes(), k)
}

// Recover returns the address that produced sig over hash. v may be 0, 1, 27 or 28;
// high-s signatures are accepted.
func Recover(hash []byte, sig Signature) (common.Address, error) {
	if len(hash) != common.HashLength {
		return common.Address{}, fmt.Errorf("%w: hash must be %d bytes", ErrInvalidSignature, common.HashLength)
	}
	if err := sig.check(); err != nil {
		return common.Address{}, err
	}

	recID, err := legacyRecoveryID(sig.V())
	if err != nil {
		return common.Address{}, err
	}
	return recoverWithID(hash, sig, recID)
}

// RecoverMessage recovers the signer of a personal message.
func RecoverMessage(message []byte, sig Signature) (common.Address, error) {
	hash := TextHash(message)
	return Recover(hash.Bytes(), sig)
}

// RecoverTypedData recovers the signer of an EIP-712 document.
func RecoverTypedData(td *eip712.TypedData, sig Signature) (common.Address, error) {
	hash, err := td.Hash()
	if err != nil {
		return common.Address{}, err
	}
	return Recover(hash.Bytes(), sig)
}

// VerifyHash reports whether sig over hash was produced by expected. A structurally
// invalid signature is an error; a valid signature by someone else is false.
func VerifyHash(hash []byte, sig Signature, expected common.Address) (bool, error) {
	normalized, err := sig.Normalize()
	if err != nil {
		return false, err
	}

	addr, err := Recover(hash, normalized)
	if err != nil {
		return false, err
	}
	return addr == expected, nil
}

// Verify checks a personal message signature.
func Verify(message []byte, sig Signature, expected common.Address) (bool, error) {
	hash := TextHash(message)
	return VerifyHash(hash.Bytes(), sig, expected)
}

// VerifyTypedData checks an EIP-712 signature.
func VerifyTypedData(td *eip712.TypedData, sig Signature, expected common.Address) (bool, error) {
	hash, err := td.Hash()
	if err != nil {
		return false, err
	}
	return VerifyHash(hash.Bytes(), sig, expected)
}

// EncodeChainV re-encodes v as recid + 35 + 2*chainID. It fails when the result does not
// fit in the single v byte.
func EncodeChainV(sig Signature, chainID uint64) (Signature, error) {
	if err := sig.check(); err != nil {
		return nil, err
	}
	recID, err := legacyRecoveryID(sig.V())
	if err != nil {
		return nil, err
	}
	if chainID > (255-36)/2 {
		return nil, fmt.Errorf("chain id %d does not fit a one-byte v", chainID)
	}

	out := make(Signature, SignatureLength)
	copy(out, sig)
	out[64] = recID + 35 + byte(2*chainID)
	return out, nil
}

// RecoverWithChainID is Recover that also accepts v = recid + 35 + 2*chainID.
func RecoverWithChainID(hash []byte, sig Signature, chainID uint64) (common.Address, error) {
	if err := sig.check(); err != nil {
		return common.Address{}, err
	}

	v := uint64(sig.V())
	base := 35 + 2*chainID
	if v == base || v == base+1 {
		if len(hash) != common.HashLength {
			return common.Address{}, fmt.Errorf("%w: hash must be %d bytes", ErrInvalidSignature, common.HashLength)
		}
		return recoverWithID(hash, sig, byte(v-base))
	}
	return Recover(hash, sig)
}

func legacyRecoveryID(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	default:
		return 0, fmt.Errorf("%w: unsupported v value %d", ErrInvalidSignature, v)
	}
}

// recoverWithID runs point recovery on the low-s form of sig.
func recoverWithID(hash []byte, sig Signature, recID byte) (common.Address, error) {
	raw := make([]byte, SignatureLength)
	copy(raw, sig)
	raw[64] = recID

	normalized, err := Signature(raw).Normalize()
	if err != nil {
		return common.Address{}, err
	}

	pub, err := ethcrypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
