package eip712

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// encodeAtomic encodes a value type into a single word. Dynamic types (string, bytes) are
// replaced by their keccak256 hash.
func encodeAtomic(typ string, value any) ([]byte, error) {
	switch typ {
	case "address":
		addr, err := toAddress(value)
		if err != nil {
			return nil, err
		}
		return common.LeftPadBytes(addr.Bytes(), 32), nil

	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean, got %T", value)
		}
		word := make([]byte, 32)
		if b {
			word[31] = 1
		}
		return word, nil

	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %T", value)
		}
		return crypto.Keccak256([]byte(s)), nil

	case "bytes":
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		return crypto.Keccak256(b), nil
	}

	if size, ok := fixedBytesSize(typ); ok {
		b, err := toBytes(value)
		if err != nil {
			return nil, err
		}
		if len(b) != size {
			return nil, fmt.Errorf("expected %d bytes for %s, got %d", size, typ, len(b))
		}
		return common.RightPadBytes(b, 32), nil
	}

	if bits, signed, ok := integerType(typ); ok {
		n, err := toBigInt(value)
		if err != nil {
			return nil, err
		}
		if err := checkIntegerRange(n, bits, signed); err != nil {
			return nil, fmt.Errorf("%s: %v", typ, err)
		}
		return ethmath.U256Bytes(new(big.Int).Set(n)), nil
	}

	return nil, fmt.Errorf("unknown type %q", typ)
}

func toAddress(value any) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case string:
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("invalid address %q", v)
		}
		return common.HexToAddress(v), nil
	default:
		return common.Address{}, fmt.Errorf("expected an address string, got %T", value)
	}
}

func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case hexutil.Bytes:
		return v, nil
	case string:
		b, err := hexutil.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("invalid hex bytes %q: %v", v, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("expected a hex string, got %T", value)
	}
}

// toBigInt accepts JSON numbers, decimal or 0x-prefixed strings, Go integers and big.Int.
func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, errors.New("nil integer")
		}
		return v, nil
	case big.Int:
		return &v, nil
	case json.Number:
		return parseInteger(string(v))
	case string:
		return parseInteger(v)
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return nil, fmt.Errorf("number %v is not an exact integer", v)
		}
		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("expected an integer, got %T", value)
	}
}

func parseInteger(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	digits, negative := strings.CutPrefix(s, "-")

	base := 10
	if rest, ok := strings.CutPrefix(digits, "0x"); ok {
		digits, base = rest, 16
	} else if rest, ok := strings.CutPrefix(digits, "0X"); ok {
		digits, base = rest, 16
	}

	n, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" || strings.ContainsAny(digits, "+-_") {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if negative {
		n.Neg(n)
	}
	return n, nil
}

func checkIntegerRange(n *big.Int, bits int, signed bool) error {
	if !signed {
		if n.Sign() < 0 {
			return errors.New("negative value for unsigned integer")
		}
		if n.BitLen() > bits {
			return fmt.Errorf("value overflows %d bits", bits)
		}
		return nil
	}

	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	lowest := new(big.Int).Neg(limit)
	if n.Cmp(lowest) < 0 || n.Cmp(limit) >= 0 {
		return fmt.Errorf("value out of range for int%d", bits)
	}
	return nil
}
