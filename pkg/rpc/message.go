package rpc

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/scrogson/walle/pkg/sign"
)

// Request is a client call together with any signatures over its payload.
// The node does not require request signatures; they are recoverable for
// handlers that want to authenticate the caller.
type Request struct {
	Req Payload          `json:"req"`
	Sig []sign.Signature `json:"sig"`
}

func NewRequest(payload Payload, sig ...sign.Signature) Request {
	if sig == nil {
		sig = []sign.Signature{}
	}
	return Request{Req: payload, Sig: sig}
}

// GetSigners recovers the address behind each signature.
func (r Request) GetSigners() ([]common.Address, error) {
	return recoverPayloadSigners(r.Req, r.Sig)
}

// Response is the node's signed reply.
type Response struct {
	Res Payload          `json:"res"`
	Sig []sign.Signature `json:"sig"`
}

func NewResponse(payload Payload, sig ...sign.Signature) Response {
	if sig == nil {
		sig = []sign.Signature{}
	}
	return Response{Res: payload, Sig: sig}
}

// GetSigners recovers the address behind each signature.
func (r Response) GetSigners() ([]common.Address, error) {
	return recoverPayloadSigners(r.Res, r.Sig)
}

// NewErrorResponse builds an unsigned response with method "error".
func NewErrorResponse(requestID uint64, msg string, sig ...sign.Signature) Response {
	return NewResponse(NewPayload(requestID, ErrorMethod.String(), NewErrorParams(msg)), sig...)
}

// Error returns the reported failure for error responses and nil otherwise.
func (r Response) Error() error {
	if r.Res.Method != ErrorMethod.String() {
		return nil
	}
	return r.Res.Params.Error()
}

func recoverPayloadSigners(payload Payload, sigs []sign.Signature) ([]common.Address, error) {
	hash, err := payload.Hash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash payload: %w", err)
	}

	signers := make([]common.Address, 0, len(sigs))
	for i, sig := range sigs {
		addr, err := sign.Recover(hash, sig)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		signers = append(signers, addr)
	}
	return signers, nil
}
