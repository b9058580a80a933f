package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"norelock.dev/soundscope/internal/accounts"
	"norelock.dev/soundscope/internal/api"
	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/db/mongo"
	"norelock.dev/soundscope/internal/db/mongo/repositories"
	"norelock.dev/soundscope/internal/db/redis"
	"norelock.dev/soundscope/internal/db/redis/managers"
	"norelock.dev/soundscope/internal/rpc"
	"norelock.dev/soundscope/internal/rpc/methods"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/services/media"
	"norelock.dev/soundscope/internal/services/system"
	"norelock.dev/soundscope/internal/utils"
	"norelock.dev/soundscope/pkg/cache"
)

func main() {
	// Create a context that will be canceled on interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received shutdown signal")
		cancel()
	}()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := utils.NewLogger(utils.LoggerOptions{
		Development:      cfg.Environment == "development",
		Level:            utils.ParseLevel(cfg.Logging.Level),
		Encoding:         cfg.Logging.Format,
		OutputPaths:      cfg.Logging.OutputPaths,
		ErrorOutputPaths: cfg.Logging.ErrorOutputPaths,
	})
	utils.SetLogger(logger)
	defer logger.Sync()

	for _, warning := range config.ValidateAndFixConfig(cfg) {
		logger.Warn("Configuration adjusted", "warning", warning)
	}
	logger.Info("Starting SoundCloud scope", "environment", cfg.Environment, "apiRoot", cfg.SoundCloud.APIRoot)

	metrics := system.NewMetricsService(logger)
	httpClient := &http.Client{Timeout: 30 * time.Second}

	healthService := system.NewHealthService(logger, system.HealthServiceConfig{
		Version:     "0.1.0",
		Environment: cfg.Environment,
	})
	healthService.AddHTTPComponent("soundcloud", cfg.SoundCloud.APIRoot, false, httpClient)

	maintenanceService := system.NewMaintenanceService(cfg.Maintenance, logger)

	scopeOptions := []scope.Option{
		scope.WithLogger(logger),
		scope.WithMetrics(metrics),
		scope.WithHTTPClient(httpClient),
	}

	// Account status: the static token from configuration, overridden by the
	// account daemon's record in Redis when one is available.
	sources := accounts.Chain{accounts.NewStatic(cfg.SoundCloud.AccessToken, cfg.SoundCloud.ClientID)}

	var (
		accountManager *managers.AccountManager
		trackBackend   cache.Cache
	)

	// Initialize Redis client
	if cfg.Database.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Database.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", err)
		}
		defer redisClient.Close()
		healthService.AddComponent("redis", false, redisClient)

		accountManager = managers.NewAccountManager(redisClient, accounts.ServiceName, managers.DefaultAccountTTL)
		defer accountManager.Close()
		sources = accounts.Chain{accountManager, sources[0]}

		trackBackend = managers.NewCache(redisClient, cfg.Scope.CacheTTL)

		limiter := redis.NewRateLimiter(redisClient, redis.RateLimitActions(cfg.RateLimit.Actions, cfg.RateLimit.Window))
		scopeOptions = append(scopeOptions, scope.WithLimiter(limiter))
	} else {
		memoryCache := cache.NewMemoryCache(cache.WithDefaultTTL(cfg.Scope.CacheTTL), cache.WithMaxSize(32<<20))
		maintenanceService.RegisterTask("purge_track_cache", time.Minute, system.CachePurgeTask(memoryCache, logger))
		trackBackend = memoryCache

		limiter := scope.NewLocalLimiter(cfg.RateLimit.Actions, cfg.RateLimit.Window)
		maintenanceService.RegisterTask("cleanup_action_limiter", 5*time.Minute, system.LimiterCleanupTask(limiter, logger))
		scopeOptions = append(scopeOptions, scope.WithLimiter(limiter))
	}
	scopeOptions = append(scopeOptions, scope.WithAccounts(sources))

	if cfg.Features.EnableSearchCache {
		scopeOptions = append(scopeOptions, scope.WithTrackCache(scope.NewTrackCache(trackBackend, cfg.Scope.CacheTTL)))
	}

	// Initialize MongoDB client
	var activityRepo repositories.ActivityRepository
	if cfg.Database.MongoDB.Enabled {
		mongoClient, err := mongo.NewClient(cfg.Database.MongoDB, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MongoDB", err)
		}
		defer func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Error("Failed to disconnect from MongoDB", err)
			}
		}()
		healthService.AddComponent("mongodb", false, mongoClient)

		if err := mongoClient.EnsureIndexes(ctx); err != nil {
			logger.Error("Failed to create MongoDB indexes", err)
		}

		activityRepo = repositories.NewActivityRepository(mongoClient.Database(), logger)
		maintenanceService.RegisterTask("activity_retention", time.Hour,
			system.ActivityRetentionTask(activityRepo, cfg.Maintenance.ActivityMaxAge, logger))

		if cfg.Features.EnableActivityLog {
			scopeOptions = append(scopeOptions, scope.WithActivityRecorder(activityRepo))
		}
	}

	if cfg.Features.EnableYouTube {
		if cfg.YouTube.APIKey == "" {
			logger.Warn("YouTube category enabled without an API key, skipping")
		} else {
			scopeOptions = append(scopeOptions, scope.WithVideoSearcher(media.NewYouTubeService(cfg.YouTube.APIKey, logger)))
		}
	}

	// Initialize the scope
	s := scope.New(cfg, scopeOptions...)
	if err := s.Start(ctx); err != nil {
		logger.Fatal("Failed to start scope", err)
	}

	// Initialize authentication provider
	var authProvider auth.Provider
	if cfg.Auth.JWTSecret != "" {
		jwtProvider, err := auth.NewJWTProvider(cfg.Auth, logger)
		if err != nil {
			logger.Fatal("Failed to create auth provider", err)
		}
		authProvider = jwtProvider
	}

	// Initialize RPC router and server
	rpcRouter := rpc.NewRouter(logger)
	methods.RegisterAllMethods(rpcRouter, s, logger)

	rpcServer := rpc.NewServer(rpc.ServerConfig{
		WebSocket:      cfg.WebSocket,
		AuthRequired:   cfg.Auth.Required,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, rpcRouter, authProvider, metrics, logger)

	if accountManager != nil {
		accountManager.OnChange(func(creds accounts.Credentials) {
			s.OnAccountChange(creds)
			if err := rpcServer.Notify(rpc.EventAccountChanged, map[string]any{
				"service":       creds.Service,
				"authenticated": creds.Authenticated(),
			}); err != nil {
				logger.Error("Failed to notify account change", err)
			}
		})
		accountManager.Watch(ctx)
	}

	var requestLimiter *utils.RateLimiter
	if cfg.Server.RequestsPerMinute > 0 {
		requestLimiter = utils.NewRateLimiter(time.Minute, cfg.Server.RequestsPerMinute)
		maintenanceService.RegisterTask("cleanup_request_limiter", 5*time.Minute, system.LimiterCleanupTask(requestLimiter, logger))
	}

	// Initialize API router
	router := api.NewRouter(api.Dependencies{
		Scope:        s,
		RPCServer:    rpcServer,
		AuthProvider: authProvider,
		Activities:   activityRepo,
		Health:       healthService,
		Metrics:      metrics,
		RateLimiter:  requestLimiter,
	}, cfg, logger)

	// Start background services
	healthService.Start(ctx)
	maintenanceService.Start(ctx)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", "address", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutting down scope")

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Running queries are cancelled first so their requests return promptly.
	s.Stop()

	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("RPC server shutdown error", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", err)
	}

	maintenanceService.Stop()

	logger.Info("Scope shutdown complete")
}
