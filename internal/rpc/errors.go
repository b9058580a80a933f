package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"norelock.dev/soundscope/internal/models"
)

// ErrorCode is a type for JSON-RPC error codes.
type ErrorCode int

// JSON-RPC 2.0 error codes
const (
	// Parse error: Invalid JSON was received by the server.
	ErrParseError ErrorCode = -32700

	// Invalid Request: The JSON sent is not a valid Request object.
	ErrInvalidRequest ErrorCode = -32600

	// Method not found: The method does not exist / is not available.
	ErrMethodNotFound ErrorCode = -32601

	// Invalid params: Invalid method parameter(s).
	ErrInvalidParams ErrorCode = -32602

	// Internal error: Internal JSON-RPC error.
	ErrInternalError ErrorCode = -32603

	// Server error: Reserved for implementation-defined server-errors.
	ErrServerError ErrorCode = -32000

	// Authentication error: The client is not authenticated.
	ErrAuthenticationRequired ErrorCode = -32001

	// Authorization error: The client is not authorized to perform the requested action.
	ErrNotAuthorized ErrorCode = -32002

	// Rate limit exceeded: The client has exceeded the rate limit.
	ErrRateLimitExceeded ErrorCode = -32003

	// Invalid token: The provided token is invalid.
	ErrInvalidToken ErrorCode = -32004

	// Token expired: The client's token has expired.
	ErrTokenExpired ErrorCode = -32005

	// Upstream failure: a SoundCloud request failed.
	ErrUpstreamFailed ErrorCode = -32100

	// Upstream timeout: a SoundCloud request did not complete in time.
	ErrUpstreamTimeout ErrorCode = -32101

	// Query not found: no running query has the given id.
	ErrQueryNotFound ErrorCode = -32102

	// Account required: the action needs an authenticated SoundCloud account.
	ErrAccountRequired ErrorCode = -32103

	// Feature disabled: the requested feature is switched off.
	ErrFeatureDisabled ErrorCode = -32104
)

// String returns a string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrParseError:
		return "Parse error"
	case ErrInvalidRequest:
		return "Invalid request"
	case ErrMethodNotFound:
		return "Method not found"
	case ErrInvalidParams:
		return "Invalid params"
	case ErrInternalError:
		return "Internal error"
	case ErrServerError:
		return "Server error"
	case ErrAuthenticationRequired:
		return "Authentication required"
	case ErrNotAuthorized:
		return "Not authorized"
	case ErrRateLimitExceeded:
		return "Rate limit exceeded"
	case ErrInvalidToken:
		return "Invalid token"
	case ErrTokenExpired:
		return "Token expired"
	case ErrUpstreamFailed:
		return "SoundCloud request failed"
	case ErrUpstreamTimeout:
		return "SoundCloud request timed out"
	case ErrQueryNotFound:
		return "Query not found"
	case ErrAccountRequired:
		return "SoundCloud account required"
	case ErrFeatureDisabled:
		return "Feature disabled"
	default:
		return fmt.Sprintf("Error code %d", c)
	}
}

// Error conbines an error code, message, and no data.
func (c ErrorCode) Error() error {
	return &Error{
		Code:    c,
		Message: c.String(),
	}
}

// ErrorWith combines an error code, message, and data.
func (c ErrorCode) ErrorWith(data any) error {
	return &Error{
		Code:    c,
		Message: c.String(),
		Data:    data,
	}
}

// NewError creates a new Error with the given code, message, and data.
func NewError(code ErrorCode, message string, data any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// codeForDomainError picks the error code of a scope-layer error from its HTTP status.
func codeForDomainError(err *models.DomainError) ErrorCode {
	switch {
	case errors.Is(err, models.ErrNotAuthenticated), errors.Is(err, models.ErrAccountError):
		return ErrAccountRequired
	case errors.Is(err, models.ErrFeatureDisabled):
		return ErrFeatureDisabled
	}

	switch err.Code {
	case http.StatusGatewayTimeout:
		return ErrUpstreamTimeout
	case http.StatusBadGateway:
		return ErrUpstreamFailed
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrInvalidParams
	case http.StatusUnauthorized:
		return ErrAccountRequired
	case http.StatusServiceUnavailable:
		return ErrFeatureDisabled
	default:
		return ErrServerError
	}
}

// ErrConnectionClosed is returned when a notification cannot be queued.
var ErrConnectionClosed = errors.New("rpc: connection closed")
