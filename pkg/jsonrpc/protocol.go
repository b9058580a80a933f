// Package jsonrpc provides a JSON-RPC 2.0 client over WebSocket.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC 2.0 error codes
const (
	// Parse error: Invalid JSON was received by the server.
	ErrParseError = -32700

	// Invalid Request: The JSON sent is not a valid Request object.
	ErrInvalidRequest = -32600

	// Method not found: The method does not exist / is not available.
	ErrMethodNotFound = -32601

	// Invalid params: Invalid method parameter(s).
	ErrInvalidParams = -32602

	// Internal error: Internal JSON-RPC error.
	ErrInternalError = -32603

	// Server error: Reserved for implementation-defined server-errors.
	ErrServerError = -32000
)

// Protocol errors
var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrInvalidVersion  = errors.New("invalid JSON-RPC version")
	ErrInvalidResponse = errors.New("invalid response")
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	// JSONRPC is the version of the JSON-RPC protocol. Must be "2.0".
	JSONRPC string `json:"jsonrpc"`

	// Method is the name of the method to be invoked.
	Method string `json:"method"`

	// Params is the parameter values to be used during the invocation of the method.
	Params json.RawMessage `json:"params,omitempty"`

	// ID is the identifier established by the client. If omitted, the request is a notification.
	ID any `json:"id,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data is additional information about the error.
	Data json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Message is any frame received from the server: a response when Method is
// empty, a notification otherwise.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// IsNotification reports whether the message is a server notification.
func (m *Message) IsNotification() bool {
	return m.Method != ""
}

// UnmarshalParams unmarshals the notification parameters into v.
func (m *Message) UnmarshalParams(v any) error {
	if m.Params == nil {
		return nil
	}
	return json.Unmarshal(m.Params, v)
}

// UnmarshalResult unmarshals the response result into v.
func (m *Message) UnmarshalResult(v any) error {
	if m.Result == nil {
		return nil
	}
	return json.Unmarshal(m.Result, v)
}

// NewRequest creates a new JSON-RPC 2.0 request.
func NewRequest(method string, params any, id any) (*Request, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}

	return &Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      id,
	}, nil
}

// NewNotification creates a new JSON-RPC 2.0 notification (a request without an ID).
func NewNotification(method string, params any) (*Request, error) {
	return NewRequest(method, params, nil)
}

// ParseMessage parses a frame received from the server.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if msg.JSONRPC != "2.0" {
		return nil, ErrInvalidVersion
	}

	if msg.Method == "" && msg.Error != nil && msg.Result != nil {
		return nil, ErrInvalidResponse
	}

	return &msg, nil
}
