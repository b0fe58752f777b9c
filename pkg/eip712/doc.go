// Package eip712 models EIP-712 typed data and computes its signing digest.
//
// A TypedData value mirrors the JSON document accepted by eth_signTypedData_v4:
//
//	{
//	  "types":       {"EIP712Domain": [...], "Mail": [{"name": "from", "type": "Person"}, ...]},
//	  "primaryType": "Mail",
//	  "domain":      {"name": "Ether Mail", "version": "1", "chainId": 1, ...},
//	  "message":     {...}
//	}
//
// The digest is keccak256(0x19 0x01 ‖ hashStruct(domain) ‖ hashStruct(message)). When the
// EIP712Domain type is not declared it is inferred from the keys present in the domain, in
// the canonical order name, version, chainId, verifyingContract, salt.
//
// Every malformed or type-inconsistent input is reported as ErrInvalidTypedData; input that
// is not JSON at all is reported as ErrMalformedJSON. No partial digests are returned.
package eip712
