package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ruteri/contract-registry/interfaces"
)

// Stable error codes carried in ErrorResponse.Code.
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeUnauthorized       = "unauthorized"
	CodeIdentityNotValid   = "identity_not_valid"
	CodeNoIdentityOracle   = "no_identity_oracle"
	CodeKilled             = "killed"
	CodeRejected           = "rejected"
	CodePrecondition       = "precondition_failed"
	CodeNotFound           = "not_found"
	CodeInvalidTransition  = "invalid_transition"
	CodeInvalidHash        = "invalid_hash"
	CodeInvalidPrincipal   = "invalid_principal"
	CodeContentNotFound    = "content_not_found"
	CodeContentMismatch    = "content_mismatch"
	CodeBackendUnavailable = "backend_unavailable"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

var ErrBadRequest = errors.New("bad request")

type errorMapping struct {
	err    error
	code   string
	status int
}

// Checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{ErrMissingSignature, CodeUnauthenticated, http.StatusUnauthorized},
	{ErrInvalidSignature, CodeUnauthenticated, http.StatusUnauthorized},
	{ErrStaleRequest, CodeUnauthenticated, http.StatusUnauthorized},
	{interfaces.ErrRegistryKilled, CodeKilled, http.StatusGone},
	{interfaces.ErrUnauthorized, CodeUnauthorized, http.StatusForbidden},
	{interfaces.ErrIdentityNotValid, CodeIdentityNotValid, http.StatusForbidden},
	{interfaces.ErrRejected, CodeRejected, http.StatusConflict},
	{interfaces.ErrInvalidTransition, CodeInvalidTransition, http.StatusConflict},
	{interfaces.ErrPrecondition, CodePrecondition, http.StatusPreconditionFailed},
	{interfaces.ErrEntryNotFound, CodeNotFound, http.StatusNotFound},
	{interfaces.ErrInvalidHash, CodeInvalidHash, http.StatusBadRequest},
	{interfaces.ErrInvalidPrincipal, CodeInvalidPrincipal, http.StatusBadRequest},
	{interfaces.ErrContentNotFound, CodeContentNotFound, http.StatusNotFound},
	{interfaces.ErrContentMismatch, CodeContentMismatch, http.StatusBadGateway},
	{interfaces.ErrBackendUnavailable, CodeBackendUnavailable, http.StatusServiceUnavailable},
	{interfaces.ErrNoIdentityOracle, CodeNoIdentityOracle, http.StatusServiceUnavailable},
	{ErrBadRequest, CodeBadRequest, http.StatusBadRequest},
}

// ErrorCode maps an error to its wire code and HTTP status.
func ErrorCode(err error) (string, int) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.code, m.status
		}
	}
	return CodeInternal, http.StatusInternalServerError
}

// ErrorFromResponse rebuilds an error from a decoded ErrorResponse so callers can
// use errors.Is against the same sentinels the server matched.
func ErrorFromResponse(status int, resp ErrorResponse) error {
	for _, m := range errorMappings {
		if m.code == resp.Code {
			return fmt.Errorf("%w: %s", m.err, resp.Error)
		}
	}
	return fmt.Errorf("server returned %d: %s", status, resp.Error)
}
