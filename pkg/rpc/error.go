package rpc

import (
	"encoding/json"
	"fmt"
)

const errorParamKey = "error"

// Error is an error whose message is safe to return to clients.
type Error struct {
	err error
}

// Errorf formats a client-visible error. %w is honoured for errors.Is checks.
func Errorf(format string, args ...any) Error {
	return Error{err: fmt.Errorf(format, args...)}
}

func (e Error) Error() string {
	return e.err.Error()
}

func (e Error) Unwrap() error {
	return e.err
}

// NewErrorParams builds {"error": msg}.
func NewErrorParams(msg string) Params {
	raw, _ := json.Marshal(msg)
	return Params{errorParamKey: raw}
}
