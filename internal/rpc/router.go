// Package rpc serves the scope over JSON-RPC 2.0 on a WebSocket connection.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/utils"
)

// HandlerFunc is a function that handles an RPC request.
type HandlerFunc func(ctx context.Context, client *Client, params json.RawMessage) (any, error)

type HandlerFuncNoParams func(ctx context.Context, client *Client) (any, error)

func (h HandlerFuncNoParams) handlerFunc() HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		return h(ctx, client)
	}
}
func RegisterNoParams(hr HandlerRegistry, method string, h HandlerFuncNoParams) {
	hr.Register(method, h.handlerFunc())
}

// HandlerFuncWith is a handler with decoded and validated params.
type HandlerFuncWith[T any] func(ctx context.Context, client *Client, params *T) (any, error)

func (h HandlerFuncWith[T]) handlerFunc() HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		var p T
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &Error{
					Code:    ErrInvalidParams,
					Message: "Invalid parameters",
					Data:    err.Error(),
				}
			}
		}
		if err := utils.Validate(&p); err != nil {
			return nil, &Error{
				Code:    ErrInvalidParams,
				Message: "Invalid parameters",
				Data:    utils.FormatValidationErrors(err),
			}
		}
		return h(ctx, client, &p)
	}
}

type HandlerRegistry interface {
	Register(method string, handler HandlerFunc)
	Wrap(mw MiddlewareFunc) HandlerRegistry
}

func Register[T any](hr HandlerRegistry, method string, h HandlerFuncWith[T]) {
	hr.Register(method, h.handlerFunc())
}

// Router routes RPC requests to the appropriate handler.
type Router struct {
	// handlers is a map of method names to handler functions.
	handlers map[string]HandlerFunc

	// mutex is used to synchronize access to the handlers map.
	mutex sync.RWMutex

	// logger is the router's logger.
	logger *utils.Logger
}

// MiddlewareFunc is a function that wraps a handler function.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

type HandlerRegWrapped struct {
	inner HandlerRegistry
	mw    MiddlewareFunc
}

// Register registers a handler for a method.
func (h HandlerRegWrapped) Register(method string, handler HandlerFunc) {
	h.inner.Register(method, h.mw(handler))
}

// Wrap wraps the handler registry with middleware.
func (h HandlerRegWrapped) Wrap(mw MiddlewareFunc) HandlerRegistry {
	return HandlerRegWrapped{
		inner: h,
		mw:    mw,
	}
}

// NewRouter creates a new router.
func NewRouter(logger *utils.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.Named("router"),
	}
}

// Register registers a handler for a method.
func (r *Router) Register(method string, handler HandlerFunc) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.handlers[method] = handler
	r.logger.Debug("Registered handler", "method", method)
}

// Wrap wraps the router with middleware.
func (r *Router) Wrap(mw MiddlewareFunc) HandlerRegistry {
	return HandlerRegWrapped{
		inner: r,
		mw:    mw,
	}
}

// Methods returns the registered method names.
func (r *Router) Methods() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	return methods
}

// Route routes a request to the appropriate handler. Notifications yield a nil response.
func (r *Router) Route(ctx context.Context, client *Client, request *Request) *Response {
	r.mutex.RLock()
	handler, ok := r.handlers[request.Method]
	r.mutex.RUnlock()

	if !ok {
		r.logger.Warn("Method not found", "method", request.Method)
		if request.IsNotification() {
			return nil
		}
		return NewErrorResponse(request.ID, ErrMethodNotFound, fmt.Sprintf("Method '%s' not found", request.Method), nil)
	}

	ctx = withClient(ctx, client)
	if client.Claims != nil {
		ctx = auth.WithClaims(ctx, client.Claims)
	}

	result, err := handler(ctx, client, request.Params)
	if err != nil {
		r.logger.Debug("Handler error", "method", request.Method, "error", err)
		if request.IsNotification() {
			return nil
		}
		return handleError(request.ID, err)
	}

	if request.IsNotification() {
		return nil
	}

	return NewResponse(request.ID, result)
}

// handleError converts an error to an appropriate error response.
func handleError(id any, err error) *Response {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}

	var domainErr *models.DomainError
	if errors.As(err, &domainErr) {
		return NewErrorResponse(id, codeForDomainError(domainErr), domainErr.Error(), domainErr.Details)
	}

	return NewErrorResponse(id, ErrInternalError, "Internal error", nil)
}

type clientKey struct{}

func withClient(ctx context.Context, client *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext returns the client a request arrived on, or nil.
func ClientFromContext(ctx context.Context) *Client {
	client, _ := ctx.Value(clientKey{}).(*Client)
	return client
}

// AuthMiddleware is a middleware that checks if the client is authenticated.
func AuthMiddleware(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
		if client.Claims == nil {
			return nil, ErrAuthenticationRequired.Error()
		}
		return next(ctx, client, params)
	}
}

// RoleMiddleware creates middleware that checks if the client has the required role.
func RoleMiddleware(role string) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
			if client.Claims == nil {
				return nil, ErrAuthenticationRequired.Error()
			}
			if !client.Claims.HasRole(role) {
				return nil, ErrNotAuthorized.ErrorWith(role)
			}
			return next(ctx, client, params)
		}
	}
}

// LoggingMiddleware creates middleware that logs requests and responses.
func LoggingMiddleware(logger *utils.Logger) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (any, error) {
			logger.Debug("RPC request", "client", client.ID, "subject", client.Subject)
			result, err := next(ctx, client, params)
			if err != nil {
				logger.Debug("RPC error", "client", client.ID, "subject", client.Subject, "error", err)
			} else {
				logger.Debug("RPC response", "client", client.ID, "subject", client.Subject)
			}
			return result, err
		}
	}
}

// RecoveryMiddleware creates middleware that recovers from panics.
func RecoveryMiddleware(logger *utils.Logger) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, client *Client, params json.RawMessage) (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic recovered", fmt.Errorf("panic: %v", r), "client", client.ID, "subject", client.Subject)
					result, err = nil, ErrInternalError.Error()
				}
			}()
			return next(ctx, client, params)
		}
	}
}
