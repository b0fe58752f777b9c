package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scrogson/walle/pkg/sign"
)

// Handler processes a request. Middleware calls c.Next to continue the chain.
type Handler func(c *Context)

// Context carries one request through its handler chain.
type Context struct {
	Context context.Context
	// ConnectionID identifies the WebSocket connection the request arrived on.
	ConnectionID string
	// Signer signs the response payload.
	Signer   sign.Signer
	Request  Request
	Response Response

	handlers []Handler
}

// Next runs the next handler in the chain, if any.
func (c *Context) Next() {
	if len(c.handlers) == 0 {
		return
	}

	handler := c.handlers[0]
	c.handlers = c.handlers[1:]
	handler(c)
}

// Succeed sets a successful response.
func (c *Context) Succeed(method string, params Params) {
	c.Response.Res = NewPayload(c.Request.Req.RequestID, method, params)
}

// Fail sets an error response. The text of err is sent only when it is an
// rpc.Error; otherwise fallbackMessage is used, or a generic message when that
// is empty too.
func (c *Context) Fail(err error, fallbackMessage string) {
	message := fallbackMessage
	if rpcErr, ok := err.(Error); ok {
		message = rpcErr.Error()
	}
	if message == "" {
		message = defaultNodeErrorMessage
	}

	c.Response = NewErrorResponse(c.Request.Req.RequestID, message)
}

// GetRawResponse signs and encodes the response.
func (c *Context) GetRawResponse() ([]byte, error) {
	if c.Response.Res.Method == "" {
		c.Fail(nil, "internal server error: no response from handler")
	}

	return prepareRawResponse(c.Signer, c.Response.Res)
}

func prepareRawResponse(signer sign.Signer, payload Payload) ([]byte, error) {
	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash response payload: %w", err)
	}

	signature, err := signer.Sign(payloadHash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response payload: %w", err)
	}

	data, err := json.Marshal(NewResponse(payload, signature))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}
