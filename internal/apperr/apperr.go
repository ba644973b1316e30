// ABOUTME: Error taxonomy shared by every gateway component
// ABOUTME: Classifies failures into kinds that channels map to protocol responses

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a gateway failure. Channel adapters map kinds to
// protocol-specific status categories; they never expose raw internals.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindExecution      Kind = "execution"
	KindInternal       Kind = "internal"
)

// Error carries enough context to be logged once at the channel boundary
// and correlated back to the audit trail via RequestID.
type Error struct {
	Kind       Kind
	Message    string
	Resource   string        // workflow, run, session or tool identifier
	TenantID   string        // tenant involved, if any
	RequestID  string        // correlation identifier, set at the boundary
	RetryAfter time.Duration // backoff hint, only for rate-limit errors
	err        error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.err }

// Validation reports malformed or schema-invalid input. Never retriable.
func Validation(msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: msg, err: cause}
}

// Authentication reports a missing, invalid or expired token.
func Authentication(msg string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: msg, err: cause}
}

// Authorization reports insufficient permission or a tenant-isolation violation.
func Authorization(msg, resource, tenantID string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg, Resource: resource, TenantID: tenantID}
}

// NotFound reports an unknown workflow, tool, run or session identifier.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: "not found", Resource: resource}
}

// RateLimit reports an exhausted quota or window. Callers may retry after
// the hint elapses.
func RateLimit(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: msg, RetryAfter: retryAfter}
}

// Execution wraps a failure from the external workflow runtime. The runtime's
// detail is preserved as the cause; this layer never retries.
func Execution(msg string, cause error) *Error {
	return &Error{Kind: KindExecution, Message: msg, err: cause}
}

// Internal reports an unexpected failure that must not leak detail to callers.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, err: cause}
}

// KindOf extracts the Kind from err, descending the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// From returns the *Error inside err, or wraps err as an internal error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}

// HTTPStatus maps a kind to the status the request/response channel uses.
// Client-caused failures are 4xx, execution and internal failures 5xx.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
