package eip712_test

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrogson/walle/pkg/eip712"
)

const mailJSON = `{
	"types": {
		"EIP712Domain": [
			{"name": "name", "type": "string"},
			{"name": "version", "type": "string"},
			{"name": "chainId", "type": "uint256"},
			{"name": "verifyingContract", "type": "address"}
		],
		"Person": [
			{"name": "name", "type": "string"},
			{"name": "wallet", "type": "address"}
		],
		"Mail": [
			{"name": "from", "type": "Person"},
			{"name": "to", "type": "Person"},
			{"name": "contents", "type": "string"}
		]
	},
	"primaryType": "Mail",
	"domain": {
		"name": "Ether Mail",
		"version": "1",
		"chainId": 1,
		"verifyingContract": "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"
	},
	"message": {
		"from": {"name": "Cow", "wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"},
		"to": {"name": "Bob", "wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"},
		"contents": "Hello, Bob!"
	}
}`

func TestMailVector(t *testing.T) {
	td, err := eip712.Parse([]byte(mailJSON))
	require.NoError(t, err)

	encoded, err := td.EncodeType("Mail")
	require.NoError(t, err)
	assert.Equal(t, "Mail(Person from,Person to,string contents)Person(string name,address wallet)", encoded)

	typeHash, err := td.TypeHash("Mail")
	require.NoError(t, err)
	assert.Equal(t, "0xa0cedeb2dc280ba39b857546d74f5549c3a1d7bdc2dd96bf881f76108e23dac2", hexutil.Encode(typeHash))

	separator, err := td.DomainSeparator()
	require.NoError(t, err)
	assert.Equal(t, "0xf2cee375fa42b42143804025fc449deafd50cc031ca257e0b194a650a912090f", hexutil.Encode(separator))

	structHash, err := td.HashStruct("Mail", td.Message)
	require.NoError(t, err)
	assert.Equal(t, "0xc52c0ee5d84264471806290a3f2c4cecfc5490626bf912d01f240d7a274b371e", hexutil.Encode(structHash))

	digest, err := td.Hash()
	require.NoError(t, err)
	assert.Equal(t, "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2", digest.Hex())
}

func TestInferredDomainMatchesExplicit(t *testing.T) {
	explicit, err := eip712.Parse([]byte(mailJSON))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(mailJSON), &doc))
	delete(doc["types"].(map[string]any), eip712.DomainType)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	inferred, err := eip712.Parse(raw)
	require.NoError(t, err)

	want, err := explicit.Hash()
	require.NoError(t, err)
	got, err := inferred.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHashMatchesGoEthereum(t *testing.T) {
	wallet := "0x6966978ce78df3228993aa46984eab6d68bbe195"

	tcs := []struct {
		name   string
		ours   func() *eip712.TypedData
		theirs func() apitypes.TypedData
	}{
		{
			name: "minimal mail",
			ours: func() *eip712.TypedData {
				return &eip712.TypedData{
					Types: eip712.Types{
						"Mail": {
							{Name: "from", Type: "address"},
							{Name: "to", Type: "address"},
							{Name: "contents", Type: "string"},
						},
					},
					PrimaryType: "Mail",
					Domain:      map[string]any{"name": "Test", "version": "1", "chainId": 1},
					Message:     minimalMail(wallet),
				}
			},
			theirs: func() apitypes.TypedData {
				return apitypes.TypedData{
					Types: apitypes.Types{
						"EIP712Domain": {
							{Name: "name", Type: "string"},
							{Name: "version", Type: "string"},
							{Name: "chainId", Type: "uint256"},
						},
						"Mail": {
							{Name: "from", Type: "address"},
							{Name: "to", Type: "address"},
							{Name: "contents", Type: "string"},
						},
					},
					PrimaryType: "Mail",
					Domain:      apitypes.TypedDataDomain{Name: "Test", Version: "1", ChainId: math.NewHexOrDecimal256(1)},
					Message:     minimalMail(wallet),
				}
			},
		},
		{
			name: "policy with nested arrays",
			ours: func() *eip712.TypedData {
				return &eip712.TypedData{
					Types:       toOurs(policyTypes()),
					PrimaryType: "Policy",
					Domain:      map[string]any{"name": "Yellow App Store"},
					Message:     policyMessage(wallet),
				}
			},
			theirs: func() apitypes.TypedData {
				return apitypes.TypedData{
					Types:       policyTypes(),
					PrimaryType: "Policy",
					Domain:      apitypes.TypedDataDomain{Name: "Yellow App Store"},
					Message:     policyMessage(wallet),
				}
			},
		},
		{
			name: "recursive type",
			ours: func() *eip712.TypedData {
				return &eip712.TypedData{
					Types:       toOurs(nodeTypes()),
					PrimaryType: "Node",
					Domain:      map[string]any{"name": "Tree"},
					Message:     nodeMessage(),
				}
			},
			theirs: func() apitypes.TypedData {
				return apitypes.TypedData{
					Types:       nodeTypes(),
					PrimaryType: "Node",
					Domain:      apitypes.TypedDataDomain{Name: "Tree"},
					Message:     nodeMessage(),
				}
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ours().Hash()
			require.NoError(t, err)

			want, _, err := apitypes.TypedDataAndHash(tc.theirs())
			require.NoError(t, err)

			assert.Equal(t, common.BytesToHash(want), got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tcs := []struct {
		name string
		doc  string
		err  error
	}{
		{name: "not json", doc: `{"types":`, err: eip712.ErrMalformedJSON},
		{name: "json array", doc: `[]`, err: eip712.ErrInvalidTypedData},
		{name: "missing types", doc: `{"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "missing primary type", doc: `{"types":{"Mail":[]},"domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "undeclared primary type", doc: `{"types":{"Mail":[]},"primaryType":"Letter","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "undeclared field type", doc: `{"types":{"Mail":[{"name":"to","type":"Person"}]},"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "bad integer width", doc: `{"types":{"Mail":[{"name":"n","type":"uint7"}]},"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "duplicate field", doc: `{"types":{"Mail":[{"name":"a","type":"string"},{"name":"a","type":"bool"}]},"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "empty field name", doc: `{"types":{"Mail":[{"name":"","type":"string"}]},"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "shadowed atomic type", doc: `{"types":{"address":[]},"primaryType":"address","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "malformed array", doc: `{"types":{"Mail":[{"name":"a","type":"string[x]"}]},"primaryType":"Mail","domain":{},"message":{}}`, err: eip712.ErrInvalidTypedData},
		{name: "unknown domain key", doc: `{"types":{"Mail":[]},"primaryType":"Mail","domain":{"owner":"me"},"message":{}}`, err: eip712.ErrInvalidTypedData},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eip712.Parse([]byte(tc.doc))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestHashValueErrors(t *testing.T) {
	types := eip712.Types{
		"Value": {
			{Name: "small", Type: "uint8"},
			{Name: "signed", Type: "int8"},
			{Name: "who", Type: "address"},
			{Name: "flag", Type: "bool"},
			{Name: "tag", Type: "bytes4"},
			{Name: "pair", Type: "string[2]"},
		},
	}
	valid := func() map[string]any {
		return map[string]any{
			"small":  json.Number("255"),
			"signed": "-128",
			"who":    "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
			"flag":   true,
			"tag":    "0xdeadbeef",
			"pair":   []any{"a", "b"},
		}
	}

	td := &eip712.TypedData{Types: types, PrimaryType: "Value", Domain: map[string]any{"name": "v"}, Message: valid()}
	_, err := td.Hash()
	require.NoError(t, err)

	tcs := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{name: "uint overflow", mutate: func(m map[string]any) { m["small"] = json.Number("256") }},
		{name: "negative uint", mutate: func(m map[string]any) { m["small"] = "-1" }},
		{name: "int underflow", mutate: func(m map[string]any) { m["signed"] = "-129" }},
		{name: "fractional number", mutate: func(m map[string]any) { m["small"] = 1.5 }},
		{name: "garbage integer", mutate: func(m map[string]any) { m["small"] = "12abc" }},
		{name: "short address", mutate: func(m map[string]any) { m["who"] = "0x1234" }},
		{name: "string as bool", mutate: func(m map[string]any) { m["flag"] = "true" }},
		{name: "wrong fixed bytes length", mutate: func(m map[string]any) { m["tag"] = "0xdead" }},
		{name: "wrong fixed array length", mutate: func(m map[string]any) { m["pair"] = []any{"a"} }},
		{name: "array expected", mutate: func(m map[string]any) { m["pair"] = "a,b" }},
		{name: "missing field", mutate: func(m map[string]any) { delete(m, "flag") }},
		{name: "extra field", mutate: func(m map[string]any) { m["extra"] = 1 }},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			msg := valid()
			tc.mutate(msg)
			td := &eip712.TypedData{Types: types, PrimaryType: "Value", Domain: map[string]any{"name": "v"}, Message: msg}

			_, err := td.Hash()
			require.ErrorIs(t, err, eip712.ErrInvalidTypedData)
		})
	}
}

func TestDomainPrimaryTypeOmitsStructHash(t *testing.T) {
	td := &eip712.TypedData{
		Types:       eip712.Types{},
		PrimaryType: eip712.DomainType,
		Domain:      map[string]any{"name": "Only Domain", "chainId": big.NewInt(5)},
	}

	separator, err := td.DomainSeparator()
	require.NoError(t, err)

	digest, err := td.Hash()
	require.NoError(t, err)

	want := crypto.Keccak256Hash(append([]byte{0x19, 0x01}, separator...))
	assert.Equal(t, want, digest)
}

func minimalMail(from string) map[string]any {
	return map[string]any{
		"from":     from,
		"to":       "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
		"contents": "hello",
	}
}

func policyTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": {{Name: "name", Type: "string"}},
		"Policy": {
			{Name: "challenge", Type: "string"},
			{Name: "scope", Type: "string"},
			{Name: "wallet", Type: "address"},
			{Name: "expires_at", Type: "uint64"},
			{Name: "nonce", Type: "int8"},
			{Name: "tag", Type: "bytes32"},
			{Name: "payload", Type: "bytes"},
			{Name: "active", Type: "bool"},
			{Name: "labels", Type: "string[]"},
			{Name: "allowances", Type: "Allowance[]"},
		},
		"Allowance": {
			{Name: "asset", Type: "string"},
			{Name: "amount", Type: "uint256"},
		},
	}
}

func policyMessage(wallet string) map[string]any {
	return map[string]any{
		"challenge":  "a9d5b4fd-ef30-4bb6-b9b6-4f2778f004fd",
		"scope":      "console",
		"wallet":     wallet,
		"expires_at": big.NewInt(1748608702),
		"nonce":      big.NewInt(-5),
		"tag":        "0xab" + strings.Repeat("00", 31),
		"payload":    "0x0102030405",
		"active":     true,
		"labels":     []any{"alpha", "beta"},
		"allowances": []map[string]any{
			{"asset": "usdc", "amount": big.NewInt(12345)},
			{"asset": "eth", "amount": big.NewInt(1)},
		},
	}
}

func nodeTypes() apitypes.Types {
	return apitypes.Types{
		"EIP712Domain": {{Name: "name", Type: "string"}},
		"Node": {
			{Name: "value", Type: "uint256"},
			{Name: "children", Type: "Node[]"},
		},
	}
}

func nodeMessage() map[string]any {
	return map[string]any{
		"value": big.NewInt(1),
		"children": []any{
			map[string]any{"value": big.NewInt(2), "children": []any{}},
			map[string]any{
				"value": big.NewInt(3),
				"children": []any{
					map[string]any{"value": big.NewInt(4), "children": []any{}},
				},
			},
		},
	}
}

func toOurs(types apitypes.Types) eip712.Types {
	out := make(eip712.Types, len(types))
	for name, fields := range types {
		converted := make([]eip712.Field, len(fields))
		for i, f := range fields {
			converted[i] = eip712.Field{Name: f.Name, Type: f.Type}
		}
		out[name] = converted
	}
	return out
}
