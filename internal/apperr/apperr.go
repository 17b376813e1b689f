// Package apperr defines the small closed set of wire error codes callers of
// OmniQuery's external interfaces switch on. Modeled on the teacher's
// position-carrying ParseError/LexError/ResolutionError structs: a plain
// struct implementing error, not a wrapped-exception hierarchy.
package apperr

import (
	"errors"
	"fmt"
)

// Code is one of the wire error codes OmniQuery returns.
type Code string

// Wire error codes.
const (
	CodePlanFailed          Code = "PLAN_FAILED"
	CodeSourceTimeout       Code = "SOURCE_TIMEOUT"
	CodeRateLimitExhausted  Code = "RATE_LIMIT_EXHAUSTED"
	CodeStaleData           Code = "STALE_DATA"
	CodeEntitlementDenied   Code = "ENTITLEMENT_DENIED"
	CodeConnectorError      Code = "CONNECTOR_ERROR"
	CodeRuntimeError        Code = "RUNTIME_ERROR"
	CodeInternal            Code = "INTERNAL"
)

// Error is a typed wire error: a Code the caller can switch on, a
// human-readable Message, and an optional RetryAfterMS hint populated when
// Code is CodeRateLimitExhausted.
type Error struct {
	Code         Code
	Message      string
	RetryAfterMS *int64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RateLimited constructs a CodeRateLimitExhausted error carrying a
// retry-after hint in milliseconds.
func RateLimited(retryAfterMS int64, format string, args ...any) *Error {
	e := New(CodeRateLimitExhausted, format, args...)
	e.RetryAfterMS = &retryAfterMS
	return e
}

// As extracts an *Error from err, mirroring errors.As without requiring
// callers to import errors for the common case.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
