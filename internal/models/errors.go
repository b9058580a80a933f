package models

import (
	"errors"
	"maps"
)

// Domain errors raised by the scope layer.
var (
	// Result errors
	ErrInvalidResult  = errors.New("result carries no track id")
	ErrUnknownAction  = errors.New("unknown action")
	ErrEmptyComment   = errors.New("comment body is empty")
	ErrCommentTooLong = errors.New("comment exceeds maximum length")

	// Account errors
	ErrNotAuthenticated = errors.New("no authenticated SoundCloud account")
	ErrAccountError     = errors.New("SoundCloud account is in an error state")

	// Activity errors
	ErrActivityNotFound = errors.New("activity not found")
	ErrInvalidID        = errors.New("invalid ID format")

	// System errors
	ErrFeatureDisabled = errors.New("feature is disabled")
	ErrTooManyRequests = errors.New("too many requests")
	ErrQueryCancelled  = errors.New("query was cancelled")
)

// DomainError represents an error that occurs in the application domain.
type DomainError struct {
	// Original is the underlying error
	Original error

	// Message is a human-readable error message
	Message string

	// Code is the HTTP status code
	Code int

	// Domain is the area of the application where the error occurred
	Domain string

	// Details contains additional context for the error
	Details map[string]any
}

// Error returns the error message
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Original.Error()
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Original
}

// NewDomainError creates a new DomainError
func NewDomainError(err error, message string, code int, domain string) *DomainError {
	if message == "" && err != nil {
		message = err.Error()
	}

	return &DomainError{
		Original: err,
		Message:  message,
		Code:     code,
		Domain:   domain,
		Details:  make(map[string]any),
	}
}

// AddDetail adds a single detail to the error
func (e *DomainError) AddDetail(key string, value any) *DomainError {
	e.Details[key] = value
	return e
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	maps.Copy(e.Details, details)
	return e
}

// NewScopeError creates a search/preview/activation error
func NewScopeError(err error, message string, code int) *DomainError {
	return NewDomainError(err, message, code, "scope")
}

// NewAccountError creates an account-related domain error
func NewAccountError(err error, message string, code int) *DomainError {
	return NewDomainError(err, message, code, "account")
}

// NewActivityError creates an activity-log domain error
func NewActivityError(err error, message string, code int) *DomainError {
	return NewDomainError(err, message, code, "activity")
}
