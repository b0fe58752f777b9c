package eip712

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EncodeType returns the canonical type signature of name: the type itself followed by
// every struct type it references, sorted by name.
func (td *TypedData) EncodeType(name string) (string, error) {
	deps := make(map[string]struct{})
	if err := td.collectDeps(name, deps); err != nil {
		return "", err
	}
	delete(deps, name)

	sorted := make([]string, 0, len(deps))
	for dep := range deps {
		sorted = append(sorted, dep)
	}
	sort.Strings(sorted)

	var b strings.Builder
	for _, typ := range append([]string{name}, sorted...) {
		fields, err := td.fieldsOf(typ)
		if err != nil {
			return "", err
		}

		b.WriteString(typ)
		b.WriteByte('(')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Type)
			b.WriteByte(' ')
			b.WriteString(f.Name)
		}
		b.WriteByte(')')
	}
	return b.String(), nil
}

func (td *TypedData) collectDeps(name string, deps map[string]struct{}) error {
	if _, seen := deps[name]; seen {
		return nil
	}
	deps[name] = struct{}{}

	fields, err := td.fieldsOf(name)
	if err != nil {
		return err
	}
	for _, f := range fields {
		base := baseType(f.Type)
		if _, ok := td.Types[base]; !ok {
			continue
		}
		if err := td.collectDeps(base, deps); err != nil {
			return err
		}
	}
	return nil
}

// TypeHash is keccak256 of EncodeType(name).
func (td *TypedData) TypeHash(name string) ([]byte, error) {
	encoded, err := td.EncodeType(name)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte(encoded)), nil
}

// HashStruct is keccak256(typeHash ‖ encodeData) for a value of struct type name.
func (td *TypedData) HashStruct(name string, data map[string]any) ([]byte, error) {
	encoded, err := td.EncodeData(name, data)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// EncodeData returns typeHash followed by one 32-byte word per field, in declaration order.
func (td *TypedData) EncodeData(name string, data map[string]any) ([]byte, error) {
	fields, err := td.fieldsOf(name)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		declared[f.Name] = struct{}{}
	}
	for k := range data {
		if _, ok := declared[k]; !ok {
			return nil, invalidf("unexpected field %s.%s", name, k)
		}
	}

	typeHash, err := td.TypeHash(name)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 32*(len(fields)+1))
	buf = append(buf, typeHash...)
	for _, f := range fields {
		value, ok := data[f.Name]
		if !ok {
			return nil, invalidf("missing field %s.%s", name, f.Name)
		}

		word, err := td.encodeValue(f.Type, value)
		if err != nil {
			return nil, invalidf("%s.%s: %v", name, f.Name, err)
		}
		buf = append(buf, word...)
	}
	return buf, nil
}

// encodeValue produces the 32-byte word for a single value.
func (td *TypedData) encodeValue(typ string, value any) ([]byte, error) {
	elem, length, isArray, err := splitArray(typ)
	if err != nil {
		return nil, err
	}

	if isArray {
		items, err := toSlice(value)
		if err != nil {
			return nil, err
		}
		if length >= 0 && len(items) != length {
			return nil, fmt.Errorf("expected %d elements for %s, got %d", length, typ, len(items))
		}

		buf := make([]byte, 0, 32*len(items))
		for i, item := range items {
			word, err := td.encodeValue(elem, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %v", i, err)
			}
			buf = append(buf, word...)
		}
		return crypto.Keccak256(buf), nil
	}

	if _, ok := td.Types[typ]; ok {
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected an object for %s, got %T", typ, value)
		}
		return td.HashStruct(typ, nested)
	}

	return encodeAtomic(typ, value)
}

// DomainSeparator is hashStruct(EIP712Domain, domain).
func (td *TypedData) DomainSeparator() ([]byte, error) {
	return td.HashStruct(DomainType, td.Domain)
}

// Hash validates the document and returns its signing digest.
func (td *TypedData) Hash() (common.Hash, error) {
	if err := td.Validate(); err != nil {
		return common.Hash{}, err
	}

	separator, err := td.DomainSeparator()
	if err != nil {
		return common.Hash{}, err
	}

	raw := make([]byte, 0, 2+2*common.HashLength)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, separator...)

	if td.PrimaryType != DomainType {
		structHash, err := td.HashStruct(td.PrimaryType, td.Message)
		if err != nil {
			return common.Hash{}, err
		}
		raw = append(raw, structHash...)
	}

	return crypto.Keccak256Hash(raw), nil
}

func baseType(typ string) string {
	if i := strings.Index(typ, "["); i > 0 {
		return typ[:i]
	}
	return typ
}

func toSlice(value any) ([]any, error) {
	if items, ok := value.([]any); ok {
		return items, nil
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected an array, got %T", value)
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, nil
}
