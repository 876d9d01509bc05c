package snow

import (
	"fmt"
	"net/http"
)

// Kind classifies a failure into one of the stable error families.
type Kind string

const (
	KindAuth             Kind = "auth"
	KindPermission       Kind = "permission"
	KindNotFound         Kind = "not_found"
	KindRateLimit        Kind = "rate_limit"
	KindInvalidParameter Kind = "invalid_parameter"
	KindConflict         Kind = "conflict"
	KindConnection       Kind = "connection"
	KindTimeout          Kind = "timeout"
	KindAPI              Kind = "api"
	KindUnknown          Kind = "unknown"
)

// Machine-readable error codes, stable across releases. Clients match on
// these, never on message text.
const (
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodePermission       = "PERMISSION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimit        = "RATE_LIMIT_ERROR"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeConflict         = "CONFLICT_ERROR"
	CodeConnection       = "CONNECTION_ERROR"
	CodeTimeout          = "TIMEOUT_ERROR"
	CodeAPI              = "SERVICENOW_API_ERROR"
	CodeUnknown          = "UNKNOWN_ERROR"
)

// Error is the typed error for every failure surfaced by this package.
// Message never contains credential material.
type Error struct {
	Kind    Kind
	Code    string
	Status  int // HTTP status, 0 when the failure happened before a response
	Message string
	err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Transient reports whether the failure is worth retrying. Unknown failures
// are treated as permanent: retrying an unclassified error can repeat a
// non-idempotent effect.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindConnection, KindTimeout, KindRateLimit:
		return true
	case KindAPI:
		return e.Status >= 500
	default:
		return false
	}
}

func codeForKind(kind Kind) string {
	switch kind {
	case KindAuth:
		return CodeAuthentication
	case KindPermission:
		return CodePermission
	case KindNotFound:
		return CodeNotFound
	case KindRateLimit:
		return CodeRateLimit
	case KindInvalidParameter:
		return CodeInvalidParameter
	case KindConflict:
		return CodeConflict
	case KindConnection:
		return CodeConnection
	case KindTimeout:
		return CodeTimeout
	case KindAPI:
		return CodeAPI
	default:
		return CodeUnknown
	}
}

// NewError creates a typed error without an HTTP status
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: codeForKind(kind), Message: message}
}

// WrapError creates a typed error wrapping an underlying cause
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Code: codeForKind(kind), Message: message, err: err}
}

// InvalidParameter reports a caller mistake (bad filter, bad sys_id, ...).
// Never retried.
func InvalidParameter(format string, args ...interface{}) *Error {
	return NewError(KindInvalidParameter, fmt.Sprintf(format, args...))
}

// classifyStatus maps an HTTP response status to a typed error
func classifyStatus(status int, message string) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized:
		kind = KindAuth
	case status == http.StatusForbidden:
		kind = KindPermission
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusConflict:
		kind = KindConflict
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusBadRequest:
		kind = KindInvalidParameter
	default:
		kind = KindAPI
	}
	return &Error{Kind: kind, Code: codeForKind(kind), Status: status, Message: message}
}
