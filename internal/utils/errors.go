package utils

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrBadRequest     = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrValidation     = errors.New("validation error")
	ErrUnavailable    = errors.New("service unavailable")
	ErrTimeout        = errors.New("upstream timeout")
)

// AppError carries an HTTP status and optional details alongside the underlying error.
type AppError struct {
	// Original is the underlying error that caused this error
	Original error
	// Message is a human-readable error message
	Message string
	// Code is the HTTP status code that should be returned
	Code int
	// Details contains additional error context
	Details map[string]any
}

// Error returns the error message, satisfying the error interface.
func (e *AppError) Error() string {
	if e.Original != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Original)
	}
	return e.Message
}

// Unwrap returns the underlying error, supporting errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Original
}

// WithDetails adds context to the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	maps.Copy(e.Details, details)
	return e
}

// AddDetail adds a single detail to the error.
func (e *AppError) AddDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NewAppError creates a new AppError.
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Original: err,
		Message:  message,
		Code:     code,
		Details:  make(map[string]any),
	}
}

// BadRequestError creates a new 400 Bad Request error.
func BadRequestError(message string, err error) *AppError {
	if message == "" {
		message = "Invalid request"
	}
	return NewAppError(err, message, http.StatusBadRequest)
}

// StatusCode returns the HTTP status code for the error.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse creates a standardized response body for API errors.
func ErrorResponse(err error) map[string]any {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		}
	}

	return map[string]any{
		"error": err.Error(),
		"code":  StatusCode(err),
	}
}
