package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Payload is the signed body of a request or response.
type Payload struct {
	// RequestID correlates a response with its request.
	RequestID uint64 `json:"request_id"`
	Method    string `json:"method"`
	Params    Params `json:"params"`
	// Timestamp is Unix milliseconds.
	Timestamp uint64 `json:"ts"`
}

// NewPayload stamps a payload with the current time.
func NewPayload(id uint64, method string, params Params) Payload {
	if params == nil {
		params = Params{}
	}

	return Payload{
		RequestID: id,
		Method:    method,
		Params:    params,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
}

// Hash returns the keccak-256 digest of the array encoding.
func (p Payload) Hash() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(data), nil
}

func (p Payload) MarshalJSON() ([]byte, error) {
	params := p.Params
	if params == nil {
		params = Params{}
	}
	return json.Marshal([]any{p.RequestID, p.Method, params, p.Timestamp})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("payload must be an array: %w", err)
	}
	if len(fields) != 4 {
		return errors.New("payload must have exactly 4 elements")
	}

	targets := []struct {
		name string
		dst  any
	}{
		{"request_id", &p.RequestID},
		{"method", &p.Method},
		{"params", &p.Params},
		{"timestamp", &p.Timestamp},
	}
	for i, t := range targets {
		if err := json.Unmarshal(fields[i], t.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", t.name, err)
		}
	}
	return nil
}

// Params holds method arguments or results keyed by name, left undecoded until
// a handler translates them into its own type.
type Params map[string]json.RawMessage

// NewParams converts any JSON object-shaped value into Params.
func NewParams(v any) (Params, error) {
	if v == nil {
		return Params{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	var params Params
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if params == nil {
		params = Params{}
	}
	return params, nil
}

// Translate decodes the params into v.
func (p Params) Translate(v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

// Error returns the message stored under the "error" key, or nil.
func (p Params) Error() error {
	raw, ok := p[errorParamKey]
	if !ok {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	return errors.New(msg)
}
