// Package api defines the wire contract of the registry HTTP service: response
// types, error codes and the signed-request scheme shared by the server and
// clients.
//
// # Signed Requests
//
// Mutating calls carry the caller's identity in three headers:
//
//	X-Registry-Caller:    0x-prefixed address of the caller
//	X-Registry-Timestamp: unix seconds, within DefaultMaxClockSkew of the server clock
//	X-Registry-Nonce:     random string, unique per request
//	X-Registry-Signature: hex secp256k1 signature [R || S || V]
//
// The signature covers SigningHash(method, host, path, timestamp, nonce, body),
// an Ethereum personal-message hash of
//
//	METHOD \n host \n /request/path \n timestamp \n nonce \n hex(keccak256(body))
//
// ReplayGuard accepts each signed digest once.
//
// Read-only calls are unsigned.
//
// # Errors
//
// Every non-2xx response has an ErrorResponse body. Code is stable and maps back
// to the interfaces sentinel errors via ErrorFromResponse.
package api
