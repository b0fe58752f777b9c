// Package rpc implements the signed WebSocket protocol spoken by the walle node.
//
// Every message is a JSON object holding a payload and a list of signatures:
//
//	{"req": [requestID, method, params, timestamp], "sig": ["0x..."]}
//	{"res": [requestID, method, params, timestamp], "sig": ["0x..."]}
//
// The payload is encoded as a four element array. Its hash is the keccak-256
// of that encoding, and signatures are plain secp256k1 signatures over the
// hash (no personal-message prefix), so the signer of any message can be
// recovered with sign.Recover.
//
// Handlers are registered on a WebsocketNode per method and run as a chain,
// with middleware added through Use on the node or on a HandlerGroup:
//
//	node.Use(loggingMiddleware)
//	unlock := node.NewGroup("unlock")
//	unlock.Use(kdfLimiter)
//	unlock.Handle(rpc.SignMessageMethod.String(), handleSignMessage)
//
// Errors created with Errorf reach the client verbatim; any other error is
// replaced by the fallback message passed to Context.Fail.
package rpc
