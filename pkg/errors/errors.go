// Package errors defines the API error type. Every failure leaving a handler
// becomes an AppError; its Code is the stable value clients switch on.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Details maps a field name to the validation messages raised for it.
type Details map[string][]string

type AppError struct {
	Code       string  `json:"code"`
	Message    string  `json:"message"`
	Details    Details `json:"details,omitempty"`
	StatusCode int     `json:"-"`
	Internal   error   `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches on Code, so a customised copy still satisfies errors.Is
// against its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e != nil && t != nil && e.Code == t.Code
}

// WithInternal returns a copy carrying err for logs; clients never see it.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Internal = err
	return &cp
}

// New builds an error with a code of its own.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

var (
	ErrUnauthorized       = New("UNAUTHORIZED", "Authentication credentials were not provided or are invalid.", http.StatusUnauthorized)
	ErrMFARequired        = New("MFA_REQUIRED", "Multi-factor authentication code required.", http.StatusUnauthorized)
	ErrMFAInvalid         = New("MFA_INVALID", "Invalid multi-factor authentication code.", http.StatusUnauthorized)
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "Invalid email or password.", http.StatusUnauthorized)
	ErrPermissionDenied   = New("PERMISSION_DENIED", "You do not have permission to perform this action.", http.StatusForbidden)
	ErrNotFound           = New("NOT_FOUND", "Not found.", http.StatusNotFound)
	ErrValidation         = New("VALIDATION_ERROR", "Invalid input.", http.StatusBadRequest)
	ErrBadRequest         = New("BAD_REQUEST", "Invalid request.", http.StatusBadRequest)
	ErrInternalServer     = New("INTERNAL_SERVER_ERROR", "Internal server error.", http.StatusInternalServerError)
	ErrRateLimit          = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down.", http.StatusTooManyRequests)
)

// like copies kind with a new message; an empty message keeps the default.
func like(kind *AppError, message string) *AppError {
	cp := *kind
	if message != "" {
		cp.Message = message
	}
	return &cp
}

// FromError finds the AppError in err's chain, or wraps err as an internal
// server error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

func NewBadRequest(message string) *AppError { return like(ErrBadRequest, message) }

func NewNotFound(message string) *AppError { return like(ErrNotFound, message) }

func NewPermissionDenied(message string) *AppError { return like(ErrPermissionDenied, message) }

func NewValidation(message string, details Details) *AppError {
	err := like(ErrValidation, message)
	err.Details = details
	return err
}

// FieldError is a VALIDATION_ERROR blaming a single field.
func FieldError(field, message string) *AppError {
	return NewValidation(message, Details{field: {message}})
}
