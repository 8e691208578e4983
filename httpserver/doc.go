/*
Package httpserver exposes a contract hash registry over HTTP.

The server is a thin transport around the registry package: it authenticates the
caller from a signed request, invokes exactly one registry operation and maps the
result or error onto a JSON response. It never changes registry semantics.

# Endpoints

	POST   /api/v1/entries/{hash}/submit    signed, any caller
	POST   /api/v1/entries/{hash}/approve   signed, owner
	POST   /api/v1/entries/{hash}/reject    signed, owner
	DELETE /api/v1/entries/{hash}           signed, owner who also submitted the entry
	GET    /api/v1/entries/{hash}           entry lookup
	GET    /api/v1/entries/{hash}/valid     validity check
	POST   /api/v1/kill                     signed, owner
	GET    /api/v1/owner                    owner, killed flag and transition policy
	POST   /api/v1/artifacts                signed, stores the body and submits its keccak256
	GET    /api/v1/artifacts/{hash}         raw artifact bytes
	GET    /api/v1/events?limit=N           recent registry events

Operational endpoints:

	GET /livez     liveness
	GET /readyz    readiness, 503 while draining or once the registry is killed
	GET /drain     mark not ready
	GET /undrain   mark ready
	/debug/pprof/  when pprof is enabled

Prometheus metrics are served by a separate listener (see the metrics package).

# Identity

Signed endpoints require the X-Registry-Caller, X-Registry-Timestamp and
X-Registry-Signature headers described in the api package. The recovered signer
is the only caller identity the registry sees.

When the handler is built WithSubmitterIdentity(true), submit and artifact
uploads additionally require the registry's identity oracle to vouch for the
caller, typically a second registry that lists approved member addresses.

# Errors

Errors are returned as {"error": "...", "code": "..."} with the status and code
given by api.ErrorCode. A rejected hash answers the validity check with 409 and
code "rejected" so clients cannot mistake it for a hash that is merely not
approved yet.
*/
package httpserver
