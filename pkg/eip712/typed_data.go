package eip712

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DomainType is the reserved name of the domain struct.
const DomainType = "EIP712Domain"

var (
	// ErrInvalidTypedData is returned for schema violations and values that do not fit their type.
	ErrInvalidTypedData = errors.New("invalid typed data")
	// ErrMalformedJSON is returned when the input is not a JSON document.
	ErrMalformedJSON = errors.New("malformed JSON")
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	validate     = validator.New()
)

// Field is a single named member of a struct type.
type Field struct {
	Name string `json:"name" validate:"required"`
	Type string `json:"type" validate:"required"`
}

// Types maps struct type names to their ordered fields.
type Types map[string][]Field

// TypedData is an EIP-712 document.
type TypedData struct {
	Types       Types          `json:"types" validate:"required,dive,keys,required,endkeys,dive"`
	PrimaryType string         `json:"primaryType" validate:"required"`
	Domain      map[string]any `json:"domain"`
	Message     map[string]any `json:"message"`
}

// domainFields lists the fields an inferred EIP712Domain may carry, in canonical order.
var domainFields = []Field{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
	{Name: "salt", Type: "bytes32"},
}

// Parse decodes and validates a typed-data JSON document. Numbers are kept as json.Number
// so that 256-bit integers survive decoding.
func Parse(data []byte) (*TypedData, error) {
	if !json.Valid(data) {
		return nil, ErrMalformedJSON
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var td TypedData
	if err := dec.Decode(&td); err != nil {
		return nil, invalidf("%v", err)
	}
	if err := td.Validate(); err != nil {
		return nil, err
	}
	return &td, nil
}

// Validate checks the schema: identifiers, duplicate fields, and that every referenced type
// is either atomic or declared. Message values are checked while hashing.
func (td *TypedData) Validate() error {
	if td == nil {
		return invalidf("nil typed data")
	}
	if err := validate.Struct(td); err != nil {
		return invalidf("%v", err)
	}

	for name, fields := range td.Types {
		if !identifierRe.MatchString(name) {
			return invalidf("invalid type name %q", name)
		}
		if isAtomic(name) {
			return invalidf("type name %q shadows an atomic type", name)
		}

		seen := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			if !identifierRe.MatchString(f.Name) {
				return invalidf("invalid field name %q in %s", f.Name, name)
			}
			if _, dup := seen[f.Name]; dup {
				return invalidf("duplicate field %s.%s", name, f.Name)
			}
			seen[f.Name] = struct{}{}

			if err := td.checkType(f.Type); err != nil {
				return invalidf("field %s.%s: %v", name, f.Name, err)
			}
		}
	}

	if td.PrimaryType != DomainType {
		if _, ok := td.Types[td.PrimaryType]; !ok {
			return invalidf("primary type %q is not declared", td.PrimaryType)
		}
	}
	if _, err := td.fieldsOf(DomainType); err != nil {
		return err
	}
	return nil
}

// checkType resolves a field type down to an atomic or declared struct type.
func (td *TypedData) checkType(typ string) error {
	base := typ
	for {
		elem, _, isArray, err := splitArray(base)
		if err != nil {
			return err
		}
		if !isArray {
			break
		}
		base = elem
	}

	if isAtomic(base) {
		return nil
	}
	if _, ok := td.Types[base]; ok {
		return nil
	}
	return fmt.Errorf("undeclared type %q", base)
}

// fieldsOf returns the fields of a struct type, inferring EIP712Domain when needed.
func (td *TypedData) fieldsOf(name string) ([]Field, error) {
	if fields, ok := td.Types[name]; ok {
		return fields, nil
	}
	if name != DomainType {
		return nil, invalidf("undeclared type %q", name)
	}

	for k := range td.Domain {
		known := false
		for _, f := range domainFields {
			if f.Name == k {
				known = true
				break
			}
		}
		if !known {
			return nil, invalidf("unknown domain field %q", k)
		}
	}

	fields := make([]Field, 0, len(domainFields))
	for _, f := range domainFields {
		if _, ok := td.Domain[f.Name]; ok {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// splitArray strips the outermost array suffix. length is -1 for dynamic arrays.
func splitArray(typ string) (elem string, length int, isArray bool, err error) {
	if !strings.HasSuffix(typ, "]") {
		return typ, 0, false, nil
	}

	open := strings.LastIndex(typ, "[")
	if open <= 0 {
		return "", 0, false, fmt.Errorf("malformed array type %q", typ)
	}

	inner := typ[open+1 : len(typ)-1]
	if inner == "" {
		return typ[:open], -1, true, nil
	}

	n, err := strconv.Atoi(inner)
	if err != nil || n < 0 || strconv.Itoa(n) != inner {
		return "", 0, false, fmt.Errorf("malformed array length in %q", typ)
	}
	return typ[:open], n, true, nil
}

// isAtomic reports whether typ is one of the EIP-712 value types.
func isAtomic(typ string) bool {
	switch typ {
	case "address", "bool", "string", "bytes":
		return true
	}
	if _, ok := fixedBytesSize(typ); ok {
		return true
	}
	_, _, ok := integerType(typ)
	return ok
}

func fixedBytesSize(typ string) (int, bool) {
	rest, ok := strings.CutPrefix(typ, "bytes")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 32 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

func integerType(typ string) (bits int, signed bool, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(typ, "uint"):
		rest = typ[len("uint"):]
	case strings.HasPrefix(typ, "int"):
		rest, signed = typ[len("int"):], true
	default:
		return 0, false, false
	}

	n, err := strconv.Atoi(rest)
	if err != nil || n < 8 || n > 256 || n%8 != 0 || strconv.Itoa(n) != rest {
		return 0, false, false
	}
	return n, signed, true
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTypedData, fmt.Sprintf(format, args...))
}
