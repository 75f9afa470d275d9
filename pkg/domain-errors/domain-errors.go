package domainerrors

import (
	"errors"
	"time"
)

// Code represents a gateway error category independent of transport layer.
// These codes describe what went wrong in business terms, not HTTP terms.
type Code string

const (
	CodeValidation  Code = "validation_failed" // malformed, oversized, or unschema-conformant input
	CodeRateLimited Code = "rate_limited"      // global window, per-action quota, or abuse lockout
	CodeAuthFailed  Code = "auth_failed"       // missing, expired, or rejected credentials
	CodeNetwork     Code = "network_error"     // transport-level failure talking to upstream
	CodeUpstream    Code = "upstream_error"    // upstream accepted the call but returned a business error
	CodeNotFound    Code = "not_found"
	CodeBadRequest  Code = "bad_request"
	CodeInternal    Code = "internal_error"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and client layers.
type Error struct {
	Code    Code
	Message string
	Err     error

	// UpstreamStatus is the HTTP status the upstream returned, when the error
	// originated from an upstream response (0 otherwise).
	UpstreamStatus int

	// Detail carries the raw upstream payload for diagnostics, when available.
	Detail any

	// Scope qualifies rate-limit errors ("global", "likes", "super_likes",
	// "boosts", "abuse"). Empty for other codes.
	Scope string

	// ResetAt is when a rate limit clears. Zero for other codes.
	ResetAt time.Time
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and
// gateway-specific fields are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Code:           existing.Code,
			Message:        msg,
			Err:            err,
			UpstreamStatus: existing.UpstreamStatus,
			Detail:         existing.Detail,
			Scope:          existing.Scope,
			ResetAt:        existing.ResetAt,
		}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// RateLimited creates a rate-limit error carrying the limited scope and the
// time at which the limit clears.
func RateLimited(scope string, resetAt time.Time, msg string) error {
	return &Error{Code: CodeRateLimited, Message: msg, Scope: scope, ResetAt: resetAt}
}

// FromUpstream creates a domain error from an upstream HTTP status, attaching
// the raw payload as diagnostic detail.
func FromUpstream(status int, payload any, msg string) error {
	code := CodeUpstream
	switch status {
	case 400:
		code = CodeValidation
	case 401:
		code = CodeAuthFailed
	case 429:
		code = CodeRateLimited
	}
	return &Error{Code: code, Message: msg, UpstreamStatus: status, Detail: payload}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// AsError extracts the domain error from an error chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
