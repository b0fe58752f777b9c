package sign

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const personalPrefix = "\x19Ethereum Signed Message:\n"

// TextHash returns the personal message digest:
//
//	keccak256("\x19Ethereum Signed Message:\n" + len(message) + message)
//
// message is treated as raw bytes; it does not have to be UTF-8.
func TextHash(message []byte) common.Hash {
	buf := make([]byte, 0, len(personalPrefix)+20+len(message))
	buf = append(buf, personalPrefix...)
	buf = strconv.AppendInt(buf, int64(len(message)), 10)
	buf = append(buf, message...)
	return crypto.Keccak256Hash(buf)
}
