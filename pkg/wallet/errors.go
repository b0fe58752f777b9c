package wallet

import (
	"errors"

	"github.com/scrogson/walle/pkg/eip712"
	"github.com/scrogson/walle/pkg/key"
	"github.com/scrogson/walle/pkg/keystore"
	"github.com/scrogson/walle/pkg/mnemonic"
	"github.com/scrogson/walle/pkg/sign"
)

// Kind classifies a failure so callers can pick a remedy without matching strings.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidKey
	KindInvalidMnemonic
	KindInvalidTypedData
	KindInvalidSignature
	KindInvalidPassword
	KindCorruptKeystore
	KindMalformedJSON
)

// Sentinels of the leaf packages, re-exported for errors.Is.
var (
	ErrInvalidKey       = key.ErrInvalidKey
	ErrInvalidMnemonic  = mnemonic.ErrInvalidMnemonic
	ErrInvalidPath      = mnemonic.ErrInvalidPath
	ErrInvalidTypedData = eip712.ErrInvalidTypedData
	ErrInvalidSignature = sign.ErrInvalidSignature
	ErrInvalidPassword  = keystore.ErrInvalidPassword
	ErrCorruptKeystore  = keystore.ErrCorruptKeystore
)

func (k Kind) String() string {
	switch k {
	case KindInvalidKey:
		return "InvalidKey"
	case KindInvalidMnemonic:
		return "InvalidMnemonic"
	case KindInvalidTypedData:
		return "InvalidTypedData"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidPassword:
		return "InvalidPassword"
	case KindCorruptKeystore:
		return "CorruptKeystore"
	case KindMalformedJSON:
		return "MalformedJSON"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of err, or KindUnknown for nil and unclassified errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, eip712.ErrMalformedJSON), errors.Is(err, keystore.ErrMalformedJSON):
		return KindMalformedJSON
	case errors.Is(err, keystore.ErrInvalidPassword):
		return KindInvalidPassword
	case errors.Is(err, keystore.ErrCorruptKeystore):
		return KindCorruptKeystore
	case errors.Is(err, mnemonic.ErrInvalidMnemonic), errors.Is(err, mnemonic.ErrInvalidPath):
		return KindInvalidMnemonic
	case errors.Is(err, eip712.ErrInvalidTypedData):
		return KindInvalidTypedData
	case errors.Is(err, sign.ErrInvalidSignature):
		return KindInvalidSignature
	case errors.Is(err, key.ErrInvalidKey):
		return KindInvalidKey
	default:
		return KindUnknown
	}
}

// IsMalformedJSON reports whether err stems from unparsable JSON input.
func IsMalformedJSON(err error) bool {
	return KindOf(err) == KindMalformedJSON
}
