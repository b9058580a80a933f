package system

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"norelock.dev/soundscope/internal/utils"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusUp indicates the component is healthy.
	StatusUp HealthStatus = "up"
	// StatusDown indicates the component is unhealthy.
	StatusDown HealthStatus = "down"
	// StatusDegraded indicates the component is functioning but with issues.
	StatusDegraded HealthStatus = "degraded"
)

// ComponentHealth represents the health of a system component.
type ComponentHealth struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	Latency     int64        `json:"latency_ms,omitempty"` // Response time in milliseconds
	LastChecked time.Time    `json:"last_checked"`
}

// SystemHealth represents the overall health of the system.
type SystemHealth struct {
	Status      HealthStatus      `json:"status"`
	Components  []ComponentHealth `json:"components"`
	Version     string            `json:"version"`
	Environment string            `json:"environment"`
	Uptime      int64             `json:"uptime_seconds"`
	StartTime   time.Time         `json:"start_time"`
	GoVersion   string            `json:"go_version"`
	GoRoutines  int               `json:"go_routines"`
	MemStats    MemoryStats       `json:"memory_stats"`
}

// MemoryStats represents memory usage statistics.
type MemoryStats struct {
	Alloc     uint64 `json:"alloc_bytes"` // Bytes allocated and still in use
	Sys       uint64 `json:"sys_bytes"`   // Bytes obtained from system
	NumGC     uint32 `json:"num_gc"`      // Number of completed GC cycles
	HeapAlloc uint64 `json:"heap_alloc_bytes"`
}

// Pinger is anything with a connectivity probe, such as the Redis and MongoDB clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type component struct {
	name string
	// critical components take the whole service down when they fail;
	// the others only degrade it.
	critical bool
	pinger   Pinger
}

// HealthService provides health checking functionality.
type HealthService struct {
	components     []component
	logger         *utils.Logger
	startTime      time.Time
	version        string
	environment    string
	componentCache map[string]ComponentHealth
	cacheMutex     sync.RWMutex
	checkInterval  time.Duration
	checkTimeout   time.Duration
}

// HealthServiceConfig contains configuration for the health service.
type HealthServiceConfig struct {
	Version     string
	Environment string
	// CheckInterval defaults to 30s.
	CheckInterval time.Duration
}

// NewHealthService creates a new health service without components.
func NewHealthService(logger *utils.Logger, config HealthServiceConfig) *HealthService {
	interval := config.CheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthService{
		logger:         logger.Named("health_service"),
		startTime:      time.Now(),
		version:        config.Version,
		environment:    config.Environment,
		componentCache: make(map[string]ComponentHealth),
		checkInterval:  interval,
		checkTimeout:   5 * time.Second,
	}
}

// AddComponent registers a component probe. A nil pinger is ignored so that
// optional stores can be passed unconditionally.
func (s *HealthService) AddComponent(name string, critical bool, pinger Pinger) {
	if pinger == nil {
		return
	}
	s.components = append(s.components, component{name: name, critical: critical, pinger: pinger})
}

// AddHTTPComponent registers a probe issuing a HEAD request against url.
// Any HTTP answer counts as reachable; only transport failures mark it down.
func (s *HealthService) AddHTTPComponent(name, url string, critical bool, client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}
	s.AddComponent(name, critical, PingerFunc(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		return nil
	}))
}

// Start begins periodic health checks.
func (s *HealthService) Start(ctx context.Context) {
	s.logger.Info("Starting health service", "components", len(s.components))

	// Perform initial health check
	s.CheckHealth(ctx)

	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Stopping health service")
				return
			case <-ticker.C:
				s.CheckHealth(ctx)
			}
		}
	}()
}

// CheckHealth probes every registered component.
func (s *HealthService) CheckHealth(ctx context.Context) {
	s.logger.Debug("Performing health check")

	for _, c := range s.components {
		s.check(ctx, c)
	}
}

func (s *HealthService) check(ctx context.Context, c component) {
	start := time.Now()

	pingCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	err := c.pinger.Ping(pingCtx)
	latency := time.Since(start).Milliseconds()

	status := StatusUp
	description := c.name + " is healthy"

	if err != nil {
		status = StatusDegraded
		if c.critical {
			status = StatusDown
		}
		description = "Failed to reach " + c.name + ": " + err.Error()
		s.logger.Error("Health check failed", err, "component", c.name)
	}

	s.updateComponentHealth(c.name, status, description, latency)
}

// GetHealth returns the current health status of the system.
func (s *HealthService) GetHealth(ctx context.Context) SystemHealth {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()

	components := make([]ComponentHealth, 0, len(s.componentCache))
	for _, component := range s.componentCache {
		components = append(components, component)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	status := StatusUp
	for _, component := range components {
		if component.Status == StatusDown {
			status = StatusDown
			break
		} else if component.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemHealth{
		Status:      status,
		Components:  components,
		Version:     s.version,
		Environment: s.environment,
		Uptime:      int64(time.Since(s.startTime).Seconds()),
		StartTime:   s.startTime,
		GoVersion:   runtime.Version(),
		GoRoutines:  runtime.NumGoroutine(),
		MemStats: MemoryStats{
			Alloc:     memStats.Alloc,
			Sys:       memStats.Sys,
			NumGC:     memStats.NumGC,
			HeapAlloc: memStats.HeapAlloc,
		},
	}
}

// updateComponentHealth updates the health status of a component in the cache.
func (s *HealthService) updateComponentHealth(name string, status HealthStatus, description string, latency int64) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()

	s.componentCache[name] = ComponentHealth{
		Name:        name,
		Status:      status,
		Description: description,
		Latency:     latency,
		LastChecked: time.Now(),
	}
}
