// Package methods contains RPC method handlers for the application.
package methods

import (
	"context"

	"norelock.dev/soundscope/internal/rpc"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/utils"
)

// RegisterAllMethods initializes all RPC method handlers and registers them with the router.
func RegisterAllMethods(router *rpc.Router, s *scope.Scope, logger *utils.Logger) {
	scopeHandler := NewScopeHandler(s, logger)

	hr := router.Wrap(rpc.RecoveryMiddleware(logger)).Wrap(rpc.LoggingMiddleware(logger))

	rpc.RegisterNoParams(hr, rpc.MethodPing, handlePing)

	scopeHandler.RegisterMethods(hr)
	logger.Info("Registered all RPC methods")
}

func handlePing(ctx context.Context, client *rpc.Client) (any, error) {
	return "pong", nil
}
