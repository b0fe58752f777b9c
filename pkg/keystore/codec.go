package keystore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/scrogson/walle/pkg/key"
)

// Encrypt seals k under password. Salt, IV and id are fresh on every call.
func Encrypt(k *key.PrivateKey, password string, p Params) (*Keystore, error) {
	if err := checkScrypt(p.N, p.R, p.P); err != nil {
		return nil, fmt.Errorf("invalid scrypt parameters: %w", err)
	}

	rnd := p.Rand
	if rnd == nil {
		rnd = rand.Reader
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rnd, salt); err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rnd, iv); err != nil {
		return nil, fmt.Errorf("failed to read iv: %w", err)
	}
	id, err := uuid.NewRandomFromReader(rnd)
	if err != nil {
		return nil, fmt.Errorf("failed to generate id: %w", err)
	}

	derived, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, dkLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer key.Zeroize(derived)

	secret := k.Bytes()
	defer key.Zeroize(secret)

	ciphertext, err := aesCTR(derived[:16], iv, secret)
	if err != nil {
		return nil, err
	}

	kdfParams, err := json.Marshal(ScryptParams{
		DKLen: dkLen,
		N:     p.N,
		R:     p.R,
		P:     p.P,
		Salt:  common.Bytes2Hex(salt),
	})
	if err != nil {
		return nil, err
	}

	return &Keystore{
		Address: common.Bytes2Hex(k.Address().Bytes()),
		Crypto: Crypto{
			Cipher:       cipherAES128CTR,
			CipherText:   common.Bytes2Hex(ciphertext),
			CipherParams: CipherParams{IV: common.Bytes2Hex(iv)},
			KDF:          kdfScrypt,
			KDFParams:    kdfParams,
			MAC:          common.Bytes2Hex(crypto.Keccak256(derived[16:32], ciphertext)),
		},
		ID:      id.String(),
		Version: Version,
	}, nil
}

// EncryptJSON is Encrypt followed by Marshal.
func EncryptJSON(k *key.PrivateKey, password string, p Params) ([]byte, error) {
	ks, err := Encrypt(k, password, p)
	if err != nil {
		return nil, err
	}
	return ks.Marshal()
}

// Parse decodes a keystore document without decrypting it.
func Parse(data []byte) (*Keystore, error) {
	if !json.Valid(data) {
		return nil, ErrMalformedJSON
	}

	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptKeystore, err)
	}
	return &ks, nil
}

// Decrypt parses and decrypts a keystore document.
func Decrypt(data []byte, password string) (*key.PrivateKey, error) {
	ks, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return DecryptKeystore(ks, password)
}

// DecryptKeystore recovers the private key sealed in ks.
func DecryptKeystore(ks *Keystore, password string) (*key.PrivateKey, error) {
	if ks.Version != Version {
		return nil, corruptf("unsupported version %d", ks.Version)
	}
	if !strings.EqualFold(ks.Crypto.Cipher, cipherAES128CTR) {
		return nil, corruptf("unsupported cipher %q", ks.Crypto.Cipher)
	}

	iv, err := decodeHex("iv", ks.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	if len(iv) != ivSize {
		return nil, corruptf("iv must be %d bytes", ivSize)
	}
	ciphertext, err := decodeHex("ciphertext", ks.Crypto.CipherText)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) != key.Size {
		return nil, corruptf("ciphertext must be %d bytes, got %d", key.Size, len(ciphertext))
	}
	mac, err := decodeHex("mac", ks.Crypto.MAC)
	if err != nil {
		return nil, err
	}
	if len(mac) != common.HashLength {
		return nil, corruptf("mac must be %d bytes", common.HashLength)
	}

	derived, err := deriveKey(ks.Crypto, password)
	if err != nil {
		return nil, err
	}
	defer key.Zeroize(derived)

	calculated := crypto.Keccak256(derived[16:32], ciphertext)
	if subtle.ConstantTimeCompare(calculated, mac) != 1 {
		return nil, ErrInvalidPassword
	}

	plain, err := aesCTR(derived[:16], iv, ciphertext)
	if err != nil {
		return nil, err
	}
	defer key.Zeroize(plain)

	k, err := key.FromBytes(plain)
	if err != nil {
		return nil, corruptf("decrypted key: %v", err)
	}

	if ks.Address != "" {
		want, err := decodeHex("address", ks.Address)
		if err != nil {
			k.Zero()
			return nil, err
		}
		if !bytes.Equal(want, k.Address().Bytes()) {
			k.Zero()
			return nil, corruptf("address does not match the decrypted key")
		}
	}
	return k, nil
}

// deriveKey runs the document's KDF after checking its parameters against resource limits.
func deriveKey(c Crypto, password string) ([]byte, error) {
	switch strings.ToLower(c.KDF) {
	case kdfScrypt:
		var p ScryptParams
		if err := json.Unmarshal(c.KDFParams, &p); err != nil {
			return nil, corruptf("kdfparams: %v", err)
		}
		if err := checkScrypt(p.N, p.R, p.P); err != nil {
			return nil, corruptf("%v", err)
		}
		if err := checkDKLen(p.DKLen); err != nil {
			return nil, err
		}
		salt, err := decodeHex("salt", p.Salt)
		if err != nil {
			return nil, err
		}

		derived, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
		if err != nil {
			return nil, corruptf("scrypt: %v", err)
		}
		return derived, nil

	case kdfPBKDF2:
		var p PBKDF2Params
		if err := json.Unmarshal(c.KDFParams, &p); err != nil {
			return nil, corruptf("kdfparams: %v", err)
		}
		if p.PRF != prfHMACSHA256 {
			return nil, corruptf("unsupported prf %q", p.PRF)
		}
		if p.C < 1 || p.C > maxPBKDF2Rounds {
			return nil, corruptf("pbkdf2 iteration count %d out of range", p.C)
		}
		if err := checkDKLen(p.DKLen); err != nil {
			return nil, err
		}
		salt, err := decodeHex("salt", p.Salt)
		if err != nil {
			return nil, err
		}

		return pbkdf2.Key([]byte(password), salt, p.C, p.DKLen, sha256.New), nil

	default:
		return nil, corruptf("unsupported kdf %q", c.KDF)
	}
}

func checkScrypt(n, r, p int) error {
	if n <= 1 || n&(n-1) != 0 {
		return fmt.Errorf("scrypt n must be a power of two greater than 1, got %d", n)
	}
	if n > maxScryptN {
		return fmt.Errorf("scrypt n %d exceeds %d", n, maxScryptN)
	}
	if r < 1 || p < 1 || r*p >= 1<<30 {
		return fmt.Errorf("scrypt r=%d p=%d out of range", r, p)
	}
	if 128*r*n > maxScryptMemory {
		return fmt.Errorf("scrypt n=%d r=%d needs more than %d bytes", n, r, maxScryptMemory)
	}
	return nil
}

func checkDKLen(n int) error {
	if n < minDKLen || n > maxDKLen {
		return corruptf("dklen %d out of range", n)
	}
	return nil
}

func aesCTR(k, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

func decodeHex(field, s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, corruptf("%s: %v", field, err)
	}
	return b, nil
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptKeystore, fmt.Sprintf(format, args...))
}
