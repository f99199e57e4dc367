// Package apierr defines the coded errors shared by all resource services.
//
// Services return (or wrap) these errors; the request gate in pkg/middleware
// is the single place that translates them into HTTP responses. Handlers
// never format HTTP error bodies themselves.
package apierr

import (
	"errors"
	"fmt"
)

// Code classifies an error for HTTP translation
type Code string

const (
	CodeUnauthorized  Code = "unauthorized"
	CodeForbidden     Code = "forbidden"
	CodeNotFound      Code = "not_found"
	CodeInvalid       Code = "invalid"
	CodeConflict      Code = "conflict"
	CodeQuotaExceeded Code = "quota_exceeded"
	CodeInternal      Code = "internal"
)

// Error carries a code, a client-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a not_found error with a client-safe message
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Invalid builds a validation error with a client-safe message
func Invalid(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalid, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error with a client-safe message
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized builds an unauthenticated error
func Unauthorized(message string) *Error {
	return &Error{Code: CodeUnauthorized, Message: message}
}

// Forbidden builds a permission-denied error
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// QuotaExceeded builds a quota error with a client-safe message
func QuotaExceeded(format string, args ...interface{}) *Error {
	return &Error{Code: CodeQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected error. The cause is kept for server-side
// logging; MessageOf never exposes it to clients.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

// Wrap attaches a cause to a coded error built by one of the constructors
func Wrap(e *Error, err error) *Error {
	e.Err = err
	return e
}

// CodeOf walks the error chain and returns the outermost code.
// Errors without a code are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for an error. Uncoded errors
// (and coded internal errors) collapse to a generic message so internal
// details never leak into responses.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "internal server error"
}
