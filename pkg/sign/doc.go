// Package sign produces and checks Ethereum ECDSA signatures.
//
// Signatures are 65 bytes, r ‖ s ‖ v, with v encoded as 27 or 28. Signing always
// yields the low-s form. Recovery accepts v in {0, 1, 27, 28} and tolerates high-s
// signatures, since both appear in the wild; verification normalises before comparing.
//
// Three hashing schemes are supported:
//
//   - Sign / Recover work on a caller-supplied 32-byte digest
//   - SignMessage / RecoverMessage use the personal message hash (see TextHash)
//   - SignTypedData / RecoverTypedData use the EIP-712 digest from package eip712
//
// The Signer, PublicKey and Address interfaces describe an identity that can sign
// without exposing its key material. EthereumSigner implements them on top of
// *key.PrivateKey and is what the RPC node uses to sign its responses.
//
// Usage
//
//	k, err := key.FromHex(privateKeyHex)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sig, err := sign.SignMessage([]byte("hello world"), k)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ok, err := sign.Verify([]byte("hello world"), sig, k.Address())
package sign
