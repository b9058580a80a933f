// Package api provides the HTTP API of the scope daemon.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"norelock.dev/soundscope/internal/api/handlers"
	appMiddleware "norelock.dev/soundscope/internal/api/middleware"
	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/db/mongo/repositories"
	"norelock.dev/soundscope/internal/rpc"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/services/system"
	"norelock.dev/soundscope/internal/utils"
)

// Router is the main HTTP router for the API.
type Router struct {
	*chi.Mux
	logger *utils.Logger
}

// Dependencies carries the services the router exposes. AuthProvider,
// RPCServer, Activities and Metrics may be nil; their routes are then left out
// or run anonymously.
type Dependencies struct {
	Scope        *scope.Scope
	RPCServer    *rpc.Server
	AuthProvider auth.Provider
	Activities   repositories.ActivityRepository
	Health       *system.HealthService
	Metrics      *system.MetricsService
	RateLimiter  *utils.RateLimiter
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies, cfg *config.Config, logger *utils.Logger) *Router {
	r := chi.NewRouter()
	apiLogger := logger.Named("api")

	var httpMetrics appMiddleware.HTTPMetrics
	if deps.Metrics != nil {
		httpMetrics = deps.Metrics
	}

	// Create middleware
	recoveryMiddleware := appMiddleware.NewRecoveryMiddleware(apiLogger)
	loggerMiddleware := appMiddleware.NewLoggerMiddleware(apiLogger, httpMetrics)
	corsMiddleware := appMiddleware.NewCORSMiddleware(appMiddleware.DefaultCORSConfig(cfg.Server.AllowedOrigins), apiLogger)
	authMiddleware := appMiddleware.NewAuthMiddleware(deps.AuthProvider, cfg.Auth.Required, apiLogger)

	// Create handlers
	var connections handlers.ConnectionCounter
	if deps.RPCServer != nil {
		connections = deps.RPCServer
	}
	scopeHandler := handlers.NewScopeHandler(deps.Scope, apiLogger)
	healthHandler := handlers.NewHealthHandler(apiLogger, deps.Health, connections, cfg)

	// Apply global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(recoveryMiddleware.Recovery)
	r.Use(loggerMiddleware.Logger)
	r.Use(corsMiddleware.CORS)
	r.Use(middleware.Heartbeat("/ping"))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/health", healthHandler.Check)

		if deps.Metrics != nil && cfg.Features.EnableMetrics {
			r.Handle("/metrics", deps.Metrics.Handler())
		}

		// The RPC server authenticates the upgrade itself.
		if deps.RPCServer != nil {
			r.Get("/ws", deps.RPCServer.HandleWebSocket)
		}
	})

	// Scope routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		if deps.RateLimiter != nil {
			r.Use(utils.RateLimitMiddleware(deps.RateLimiter, subjectKey))
		}

		r.Get("/search", scopeHandler.Search)
		r.Get("/departments", scopeHandler.Departments)
		r.Post("/preview", WithBody(scopeHandler.Preview))
		r.Post("/activate", WithBody(scopeHandler.Activate))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Use(authMiddleware.RequireRole(auth.RoleAdmin))

			r.Route("/admin", func(r chi.Router) {
				r.Get("/health", healthHandler.DetailedCheck)
				r.Post("/cache/clear", scopeHandler.ClearCache)

				if deps.Activities != nil {
					activityHandler := handlers.NewActivityHandler(deps.Activities, apiLogger)
					r.Get("/activities", activityHandler.List)
					r.Get("/activities/summary", activityHandler.Summary)
					r.Get("/activities/{id}", WithID(activityHandler.Get))
				}
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return &Router{
		Mux:    r,
		logger: apiLogger,
	}
}

func subjectKey(r *http.Request) string {
	return handlers.SubjectFromRequest(r)
}
