package soundcloud

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout is returned when a future is not ready in time.
	ErrTimeout = errors.New("HTTP request timeout")
	// ErrCancelled is returned for requests aborted through Cancel.
	ErrCancelled = errors.New("soundcloud: request cancelled")
	// ErrClosed is returned for requests issued on, or queued behind, a closed client.
	ErrClosed = errors.New("soundcloud: client closed")
	// ErrTransport wraps network failures.
	ErrTransport = errors.New("soundcloud: transport error")
	// ErrDecompress is returned for bodies that claim to be gzip but are not.
	ErrDecompress = errors.New("soundcloud: gzip decompression failed")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("soundcloud: %d %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// newAPIError extracts the message from the decoded body, falling back to the status text.
func newAPIError(status int, root any) *APIError {
	msg := ""
	if obj, ok := root.(map[string]any); ok {
		if s, ok := obj["error"].(string); ok {
			msg = s
		} else if list, ok := obj["errors"].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				msg, _ = first["error_message"].(string)
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// ErrInvalidID is returned for lookups with a zero id.
var ErrInvalidID = errors.New("soundcloud: invalid id")
