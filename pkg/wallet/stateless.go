package wallet

import "crypto/rand"

// The helpers below take and return plain strings and never hand a key back to the
// caller. Each key lives only for the duration of the call.

// NewKeystore generates a key and returns it encrypted under password.
func NewKeystore(password string) ([]byte, error) {
	k, err := GenerateWallet(rand.Reader)
	if err != nil {
		return nil, err
	}
	defer k.Zero()

	return ExportKeystore(k, password)
}

// DecryptKeystore returns the hex private key sealed in a keystore document.
func DecryptKeystore(data []byte, password string) (string, error) {
	k, err := ImportKeystore(data, password)
	if err != nil {
		return "", err
	}
	defer k.Zero()

	return k.Hex(), nil
}

// PublicAddress returns the EIP-55 address of a hex private key.
func PublicAddress(privateKeyHex string) (string, error) {
	k, err := ImportPrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	defer k.Zero()

	return k.Checksum(), nil
}

// SignMessageWithKey signs a personal message with a hex private key.
func SignMessageWithKey(privateKeyHex string, message []byte) (string, error) {
	k, err := ImportPrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	defer k.Zero()

	return SignMessage(k, message)
}

// SignTypedDataWithKey signs an EIP-712 document with a hex private key.
func SignTypedDataWithKey(privateKeyHex string, typedData []byte) (string, error) {
	k, err := ImportPrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	defer k.Zero()

	return SignTypedData(k, typedData)
}
