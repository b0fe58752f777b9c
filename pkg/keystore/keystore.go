// Package keystore encrypts private keys into Web3 Secret Storage (version 3) documents
// and decrypts them back.
//
// Encryption always uses scrypt and aes-128-ctr. Decryption also understands pbkdf2
// (hmac-sha256) documents written by other tools. The MAC is checked before any
// plaintext is produced, so a wrong password is reported as ErrInvalidPassword rather
// than as a corrupt file.
package keystore

import (
	"encoding/json"
	"errors"
	"io"
)

const (
	// Version is the only document version understood.
	Version = 3

	cipherAES128CTR = "aes-128-ctr"
	kdfScrypt       = "scrypt"
	kdfPBKDF2       = "pbkdf2"
	prfHMACSHA256   = "hmac-sha256"

	saltSize = 32
	ivSize   = 16
	dkLen    = 32
)

var (
	// ErrMalformedJSON is returned when the input is not a JSON document.
	ErrMalformedJSON = errors.New("malformed JSON")
	// ErrCorruptKeystore is returned for structurally invalid documents and for
	// plaintexts that are not valid private keys.
	ErrCorruptKeystore = errors.New("corrupt keystore")
	// ErrInvalidPassword is returned when the MAC does not match.
	ErrInvalidPassword = errors.New("invalid password")
)

// Keystore is a Web3 Secret Storage document. Byte fields are lowercase hex without 0x.
type Keystore struct {
	Address string `json:"address,omitempty"`
	Crypto  Crypto `json:"crypto"`
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// Crypto holds the cipher and KDF sections. KDFParams is decoded according to KDF.
type Crypto struct {
	Cipher       string          `json:"cipher"`
	CipherText   string          `json:"ciphertext"`
	CipherParams CipherParams    `json:"cipherparams"`
	KDF          string          `json:"kdf"`
	KDFParams    json.RawMessage `json:"kdfparams"`
	MAC          string          `json:"mac"`
}

type CipherParams struct {
	IV string `json:"iv"`
}

type ScryptParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

type PBKDF2Params struct {
	DKLen int    `json:"dklen"`
	C     int    `json:"c"`
	PRF   string `json:"prf"`
	Salt  string `json:"salt"`
}

// Params are the scrypt cost parameters used by Encrypt. Rand supplies salt, IV and
// document id; nil means crypto/rand.
type Params struct {
	N    int
	R    int
	P    int
	Rand io.Reader
}

var (
	// StandardParams match geth's standard cost (about 256MB and one second).
	StandardParams = Params{N: 1 << 18, R: 8, P: 1}
	// LightParams match geth's light cost (about 4MB and 100ms).
	LightParams = Params{N: 1 << 12, R: 8, P: 6}
	// DefaultParams is the cost used by the node and CLI when none is configured.
	DefaultParams = Params{N: 1 << 13, R: 8, P: 1}
)

// Limits applied to documents before any key derivation runs.
const (
	maxScryptN      = 1 << 20
	maxScryptMemory = 1 << 30
	maxPBKDF2Rounds = 10_000_000
	minDKLen        = 32
	maxDKLen        = 64
)

// Marshal returns the document as indented JSON.
func (ks *Keystore) Marshal() ([]byte, error) {
	return json.MarshalIndent(ks, "", "  ")
}
