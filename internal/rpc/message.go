package rpc

import "encoding/json"

// Version is the only protocol version the host endpoint speaks.
const Version = "2.0"

// Request is a call from the host shell, e.g. scope.search or scope.cancel.
// A request without an id is a notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Valid reports whether the envelope names a method and the supported version.
func (r *Request) Valid() bool {
	return r.JSONRPC == Version && r.Method != ""
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response answers a Request. Exactly one of Result and Error is set; ID is
// null when the request id could not be read.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Notification is pushed by the scope without a request: streamed results
// (scope.category, scope.result), scope.activated and scope.accountChanged.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// encodeNotification marshals a notification for method.
func encodeNotification(method string, params any) ([]byte, error) {
	return json.Marshal(&Notification{JSONRPC: Version, Method: method, Params: params})
}

// Error is the error member of a Response. Scope failures carry the domain
// error details in Data.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewResponse creates a successful response.
func NewResponse(id any, result any) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
