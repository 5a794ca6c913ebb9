// Package domainerrors defines coded errors shared across the gateway so
// transport layers can translate failures into HTTP responses without
// inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a failure independent of transport.
type Code string

const (
	// CodeCredentialMissing indicates no Authorization header was present.
	CodeCredentialMissing Code = "credential_missing"
	// CodeCredentialMalformed indicates the Authorization header was not in
	// "Bearer <token>" shape.
	CodeCredentialMalformed Code = "credential_malformed"
	// CodeCredentialInvalid covers signature, expiry, and claim failures.
	CodeCredentialInvalid Code = "credential_invalid"
	// CodeKeyUnavailable means the verification key has not been fetched yet.
	CodeKeyUnavailable Code = "key_unavailable"
	// CodeUpstreamUnavailable means a backend could not be reached.
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	// CodeNotFound means no route matched the request path.
	CodeNotFound Code = "not_found"
	// CodeRateLimited means the caller exceeded its request quota.
	CodeRateLimited Code = "rate_limited"
	// CodeBadRequest means the request body or parameters were unusable.
	CodeBadRequest Code = "bad_request"
	// CodeForbidden means the caller is authenticated but not allowed.
	CodeForbidden Code = "forbidden"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal_error"
)

// Error is a domain error carrying a stable code and a client-safe message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error. Message must be safe to return to clients.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error preserving the underlying cause for logs.
// The cause is never included in client responses.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err. Unknown errors map to
// a generic message so internal detail never leaks to callers.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal server error"
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeCredentialMissing, CodeCredentialMalformed, CodeCredentialInvalid:
		return http.StatusUnauthorized
	case CodeKeyUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
