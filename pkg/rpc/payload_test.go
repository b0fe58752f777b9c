package rpc_test

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrogson/walle/pkg/rpc"
)

func TestNewPayload(t *testing.T) {
	t.Parallel()

	p := rpc.NewPayload(7, "ping", nil)
	assert.Equal(t, uint64(7), p.RequestID)
	assert.Equal(t, "ping", p.Method)
	assert.NotNil(t, p.Params)
	assert.NotZero(t, p.Timestamp)
}

func TestPayloadMarshalJSON(t *testing.T) {
	t.Parallel()

	p := rpc.Payload{
		RequestID: 42,
		Method:    "sign_message",
		Params:    rpc.Params{"message": json.RawMessage(`"hello"`)},
		Timestamp: 1700000000000,
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[42,"sign_message",{"message":"hello"},1700000000000]`, string(data))

	empty, err := json.Marshal(rpc.Payload{Method: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `[0,"ping",{},0]`, string(empty))
}

func TestPayloadUnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "valid", input: `[1,"ping",{},5]`},
		{name: "object instead of array", input: `{"id":1}`, wantErr: "payload must be an array"},
		{name: "too few elements", input: `[1,"ping",{}]`, wantErr: "exactly 4 elements"},
		{name: "too many elements", input: `[1,"ping",{},5,6]`, wantErr: "exactly 4 elements"},
		{name: "negative id", input: `[-1,"ping",{},5]`, wantErr: "invalid request_id"},
		{name: "numeric method", input: `[1,2,{},5]`, wantErr: "invalid method"},
		{name: "array params", input: `[1,"ping",[],5]`, wantErr: "invalid params"},
		{name: "string timestamp", input: `[1,"ping",{},"now"]`, wantErr: "invalid timestamp"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var p rpc.Payload
			err := json.Unmarshal([]byte(tc.input), &p)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint64(1), p.RequestID)
			assert.Equal(t, "ping", p.Method)
			assert.Equal(t, uint64(5), p.Timestamp)
		})
	}
}

func TestPayloadHash(t *testing.T) {
	t.Parallel()

	p := rpc.Payload{RequestID: 1, Method: "ping", Params: rpc.Params{}, Timestamp: 2}
	hash, err := p.Hash()
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256([]byte(`[1,"ping",{},2]`)), hash)

	p.Timestamp = 3
	other, err := p.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)
}

func TestParams(t *testing.T) {
	t.Parallel()

	type args struct {
		Address string `json:"address"`
		Count   int    `json:"count"`
	}

	params, err := rpc.NewParams(args{Address: "0xabc", Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `"0xabc"`, string(params["address"]))

	var out args
	require.NoError(t, params.Translate(&out))
	assert.Equal(t, args{Address: "0xabc", Count: 3}, out)

	_, err = rpc.NewParams([]int{1, 2})
	assert.Error(t, err)

	empty, err := rpc.NewParams(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, empty.Error())
}

func TestParamsError(t *testing.T) {
	t.Parallel()

	params := rpc.NewErrorParams(`InvalidPassword: mac "mismatch"`)
	err := params.Error()
	require.Error(t, err)
	assert.Equal(t, `InvalidPassword: mac "mismatch"`, err.Error())

	notString := rpc.Params{"error": json.RawMessage(`123`)}
	assert.NoError(t, notString.Error())
}
