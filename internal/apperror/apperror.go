package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUpstream      = errors.New("upstream error")
	ErrConfiguration = errors.New("configuration error")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Code    string // Optional: overrides the machine-readable error type in responses
	Detail  string // Optional: raw upstream payload or underlying cause
}

func (e *AppError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithCode sets a machine-readable code so clients can tell apart two errors
// that share a sentinel (e.g. "user_not_found" vs "save_not_found").
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned when credentials are missing or wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Upstream wraps a failure reported by a third-party service. detail carries
// the upstream's raw payload so the caller can diagnose it.
func Upstream(message, detail string) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: message,
		Detail:  detail,
	}
}

// NotConfigured reports a missing credential or application registration.
func NotConfigured(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}
