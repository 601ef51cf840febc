// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input errors
	ErrUnsupportedSymbol = &Error{Code: "UNSUPPORTED_SYMBOL", Message: "symbol not supported"}
	ErrInvalidSymbol     = &Error{Code: "INVALID_SYMBOL", Message: "invalid symbol"}

	// Feed errors, absorbed by the resolver
	ErrInvalidReading   = &Error{Code: "INVALID_READING", Message: "feed returned a non-positive reading"}
	ErrTransportTimeout = &Error{Code: "TRANSPORT_TIMEOUT", Message: "rpc call timed out"}
	ErrTransportFailure = &Error{Code: "TRANSPORT_FAILURE", Message: "rpc call failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// IsRetryable reports whether err is a feed failure the resolver absorbs with
// retry and fallback.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrUnsupportedSymbol)
}
