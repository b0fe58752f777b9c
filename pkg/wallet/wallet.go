// Package wallet is the call surface used by the node and the CLI. It accepts and
// returns the textual forms used at the boundary: hex keys, JSON documents,
// 0x-prefixed signatures and EIP-55 addresses.
package wallet

import (
	"io"

	"github.com/ethereum/go-ethereum/common"

	"github.com/scrogson/walle/pkg/eip712"
	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/mnemonic"
	"github.com/scrogson/walle/pkg/sign"
)

// GenerateWallet creates a fresh key from rand.
func GenerateWallet(rand io.Reader) (*key.PrivateKey, error) {
	return key.Generate(rand)
}

// ImportPrivateKey parses a 32-byte hex key, with or without 0x.
func ImportPrivateKey(privateKeyHex string) (*key.PrivateKey, error) {
	return key.FromHex(privateKeyHex)
}

// ImportMnemonic derives the key at path from a BIP-39 phrase. An empty path
// selects the first Ethereum account.
func ImportMnemonic(phrase, path string) (*key.PrivateKey, error) {
	return mnemonic.FromPhrase(phrase, path, "")
}

// ImportMnemonicWithPassphrase is ImportMnemonic with a BIP-39 passphrase.
func ImportMnemonicWithPassphrase(phrase, path, passphrase string) (*key.PrivateKey, error) {
	return mnemonic.FromPhrase(phrase, path, passphrase)
}

// ImportKeystore decrypts a keystore document.
func ImportKeystore(data []byte, password string) (*key.PrivateKey, error) {
	return keystore.Decrypt(data, password)
}

// ExportKeystore encrypts k with keystore.DefaultParams.
func ExportKeystore(k *key.PrivateKey, password string) ([]byte, error) {
	return keystore.EncryptJSON(k, password, keystore.DefaultParams)
}

// ExportKeystoreWithParams encrypts k with the given scrypt cost.
func ExportKeystoreWithParams(k *key.PrivateKey, password string, p keystore.Params) ([]byte, error) {
	return keystore.EncryptJSON(k, password, p)
}

// ExportPrivateKey returns the key as 64 lowercase hex digits without 0x.
func ExportPrivateKey(k *key.PrivateKey) string {
	return k.Hex()
}

// GetAddress returns the EIP-55 address of k.
func GetAddress(k *key.PrivateKey) string {
	return k.Checksum()
}

// SignMessage signs a personal message and returns the 0x-prefixed signature.
func SignMessage(k *key.PrivateKey, message []byte) (string, error) {
	sig, err := sign.SignMessage(message, k)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// SignTypedData signs an EIP-712 JSON document.
func SignTypedData(k *key.PrivateKey, typedData []byte) (string, error) {
	td, err := eip712.Parse(typedData)
	if err != nil {
		return "", err
	}
	sig, err := sign.SignTypedData(td, k)
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

// Recover returns the EIP-55 address that signed a personal message.
func Recover(message []byte, signature string) (string, error) {
	sig, err := sign.ParseSignature(signature)
	if err != nil {
		return "", err
	}
	addr, err := sign.RecoverMessage(message, sig)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// RecoverTypedData returns the EIP-55 address that signed an EIP-712 document.
func RecoverTypedData(typedData []byte, signature string) (string, error) {
	td, err := eip712.Parse(typedData)
	if err != nil {
		return "", err
	}
	sig, err := sign.ParseSignature(signature)
	if err != nil {
		return "", err
	}
	addr, err := sign.RecoverTypedData(td, sig)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// Verify reports whether signature over message was made by address. An address that
// is not 20 bytes of hex can match no signer and yields false.
func Verify(message []byte, signature, address string) (bool, error) {
	sig, err := sign.ParseSignature(signature)
	if err != nil {
		return false, err
	}
	if !common.IsHexAddress(address) {
		return false, nil
	}
	return sign.Verify(message, sig, common.HexToAddress(address))
}

// VerifyTypedData is Verify for EIP-712 documents.
func VerifyTypedData(typedData []byte, signature, address string) (bool, error) {
	td, err := eip712.Parse(typedData)
	if err != nil {
		return false, err
	}
	sig, err := sign.ParseSignature(signature)
	if err != nil {
		return false, err
	}
	if !common.IsHexAddress(address) {
		return false, nil
	}
	return sign.VerifyTypedData(td, sig, common.HexToAddress(address))
}
