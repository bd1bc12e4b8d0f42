// Package apperr carries typed application errors from services to the
// transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation       Code = "VALIDATION"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeTransientStorage Code = "TRANSIENT_STORAGE"
	CodeInternal         Code = "INTERNAL"
)

// AppError is an expected failure with a stable code.
// Origin names the operation that produced it, for logs only.
type AppError struct {
	Code    Code
	Message string
	Origin  string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError without a cause
func New(code Code, origin, message string) *AppError {
	return &AppError{Code: code, Message: message, Origin: origin}
}

// Validation is a malformed or out-of-range input
func Validation(origin, format string, args ...interface{}) *AppError {
	return New(CodeValidation, origin, fmt.Sprintf(format, args...))
}

func Unauthorized(origin, message string) *AppError {
	return New(CodeUnauthorized, origin, message)
}

// Forbidden is the authorization failure: not a participant, not the
// sender, blocked pair, missing permission.
func Forbidden(origin, format string, args ...interface{}) *AppError {
	return New(CodeForbidden, origin, fmt.Sprintf(format, args...))
}

// NotFound also covers messages outside the caller's conversations
func NotFound(origin, format string, args ...interface{}) *AppError {
	return New(CodeNotFound, origin, fmt.Sprintf(format, args...))
}

// Transient wraps storage lock contention; the request may be retried
func Transient(origin string, err error) *AppError {
	return &AppError{Code: CodeTransientStorage, Message: "storage busy", Origin: origin, Err: err}
}

// Internal hides err from the client
func Internal(origin string, err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "internal error", Origin: origin, Err: err}
}

// CodeOf returns the code of the first AppError in the chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps a code to the matching HTTP status
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransientStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
