package handlers

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/services/system"
	"norelock.dev/soundscope/internal/utils"
)

// ConnectionCounter reports live host connections and the sessions behind them.
type ConnectionCounter interface {
	ClientCount() int
	SubjectCount() int
}

// HealthHandler handles HTTP requests related to system health.
type HealthHandler struct {
	logger      *utils.Logger
	healthSvc   *system.HealthService
	connections ConnectionCounter
	config      *config.Config
	startTime   time.Time
	version     string
}

// NewHealthHandler creates a new health handler. connections may be nil.
func NewHealthHandler(
	logger *utils.Logger,
	healthSvc *system.HealthService,
	connections ConnectionCounter,
	config *config.Config,
) *HealthHandler {
	return &HealthHandler{
		logger:      logger.Named("health_handler"),
		healthSvc:   healthSvc,
		connections: connections,
		config:      config,
		startTime:   time.Now(),
		version:     buildVersion(),
	}
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "devel"
	}
	return info.Main.Version
}

// Check handles requests to check the health of the system.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	health := h.healthSvc.GetHealth(r.Context())

	response := map[string]any{
		"status":     health.Status,
		"version":    h.version,
		"uptime":     time.Since(h.startTime).String(),
		"memory":     health.MemStats,
		"components": health.Components,
		"goroutines": health.GoRoutines,
		"startTime":  health.StartTime,
	}
	if h.connections != nil {
		response["connections"] = h.connections.ClientCount()
		response["sessions"] = h.connections.SubjectCount()
	}

	// Set appropriate status code based on health status
	statusCode := http.StatusOK
	if health.Status != system.StatusUp {
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondWithJSON(w, statusCode, response)
}

// DetailedCheck handles requests for detailed health information.
// This endpoint is only accessible to admins.
func (h *HealthHandler) DetailedCheck(w http.ResponseWriter, r *http.Request) {
	health := h.healthSvc.GetHealth(r.Context())

	detailedResponse := map[string]any{
		"health":       health,
		"uptime":       time.Since(h.startTime).String(),
		"startTime":    h.startTime,
		"environment":  h.config.Environment,
		"buildInfo":    h.getBuildInfo(),
		"configStatus": h.getConfigStatus(),
	}

	statusCode := http.StatusOK
	if health.Status != system.StatusUp {
		statusCode = http.StatusServiceUnavailable
	}

	utils.RespondWithJSON(w, statusCode, detailedResponse)
}

// getBuildInfo returns information about the build.
func (h *HealthHandler) getBuildInfo() map[string]any {
	return map[string]any{
		"version":   h.version,
		"goVersion": runtime.Version(),
	}
}

// getConfigStatus returns the status of the configuration.
func (h *HealthHandler) getConfigStatus() map[string]any {
	return map[string]any{
		"environment": h.config.Environment,
		"apiRoot":     h.config.SoundCloud.APIRoot,
		"features":    h.config.Features,
		"loaded":      true,
	}
}
