package system

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"norelock.dev/soundscope/internal/utils"
)

// MetricsService provides application metrics collection functionality.
// Every instance owns its registry, so several can coexist in tests.
type MetricsService struct {
	logger   *utils.Logger
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	httpRequestsInProgress *prometheus.GaugeVec

	// WebSocket metrics
	wsConnectionsTotal   prometheus.Counter
	wsConnectionsActive  prometheus.Gauge
	wsMessagesTotal      *prometheus.CounterVec
	wsConnectionDuration prometheus.Histogram

	// Scope metrics
	queriesTotal     *prometheus.CounterVec
	resultsPushed    *prometheus.CounterVec
	previewsTotal    *prometheus.CounterVec
	activationsTotal *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec

	// SoundCloud client metrics
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	// Storage metrics
	databaseOperations *prometheus.CounterVec
	databaseErrors     *prometheus.CounterVec
	databaseLatency    *prometheus.HistogramVec
}

// NewMetricsService creates a new metrics service.
func NewMetricsService(logger *utils.Logger) *MetricsService {
	m := &MetricsService{
		logger:   logger.Named("metrics_service"),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(m.registry)
	m.initHTTPMetrics(factory)
	m.initWebSocketMetrics(factory)
	m.initScopeMetrics(factory)
	m.initUpstreamMetrics(factory)
	m.initDatabaseMetrics(factory)

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics are registered with.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricsService) initHTTPMetrics(factory promauto.Factory) {
	m.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soundscope_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestsInProgress = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "soundscope_http_requests_in_progress",
			Help: "Number of HTTP requests currently in progress",
		},
		[]string{"method", "path"},
	)
}

func (m *MetricsService) initWebSocketMetrics(factory promauto.Factory) {
	m.wsConnectionsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "soundscope_ws_connections_total",
			Help: "Total number of WebSocket connections",
		},
	)

	m.wsConnectionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "soundscope_ws_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	m.wsMessagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_ws_messages_total",
			Help: "Total number of JSON-RPC messages",
		},
		[]string{"direction", "method"},
	)

	m.wsConnectionDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soundscope_ws_connection_duration_seconds",
			Help:    "Duration of WebSocket connections in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)
}

func (m *MetricsService) initScopeMetrics(factory promauto.Factory) {
	m.queriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_queries_total",
			Help: "Total number of search queries by outcome",
		},
		[]string{"kind", "outcome"},
	)

	m.resultsPushed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_results_pushed_total",
			Help: "Total number of results pushed to the host, by category",
		},
		[]string{"category"},
	)

	m.previewsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_previews_total",
			Help: "Total number of previews by outcome",
		},
		[]string{"outcome"},
	)

	m.activationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_activations_total",
			Help: "Total number of activations by action and response status",
		},
		[]string{"action", "status"},
	)

	m.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_cache_lookups_total",
			Help: "Track list cache lookups",
		},
		[]string{"result"},
	)
}

func (m *MetricsService) initUpstreamMetrics(factory promauto.Factory) {
	m.upstreamRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_soundcloud_requests_total",
			Help: "Total number of SoundCloud API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	m.upstreamLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soundscope_soundcloud_request_duration_seconds",
			Help:    "Latency of SoundCloud API requests in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
}

func (m *MetricsService) initDatabaseMetrics(factory promauto.Factory) {
	m.databaseOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"database", "operation"},
	)

	m.databaseErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soundscope_database_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"database", "operation"},
	)

	m.databaseLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soundscope_database_latency_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)
}

// ObserveHTTPRequest records metrics for an HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncHTTPRequestsInProgress increments the in-progress HTTP requests counter.
func (m *MetricsService) IncHTTPRequestsInProgress(method, path string) {
	m.httpRequestsInProgress.WithLabelValues(method, path).Inc()
}

// DecHTTPRequestsInProgress decrements the in-progress HTTP requests counter.
func (m *MetricsService) DecHTTPRequestsInProgress(method, path string) {
	m.httpRequestsInProgress.WithLabelValues(method, path).Dec()
}

// ObserveWSConnection records metrics for a closed WebSocket connection.
func (m *MetricsService) ObserveWSConnection(duration time.Duration) {
	m.wsConnectionsTotal.Inc()
	m.wsConnectionDuration.Observe(duration.Seconds())
}

// IncWSConnectionsActive increments the active WebSocket connections gauge.
func (m *MetricsService) IncWSConnectionsActive() {
	m.wsConnectionsActive.Inc()
}

// DecWSConnectionsActive decrements the active WebSocket connections gauge.
func (m *MetricsService) DecWSConnectionsActive() {
	m.wsConnectionsActive.Dec()
}

// ObserveWSMessage records a JSON-RPC message.
func (m *MetricsService) ObserveWSMessage(direction, method string) {
	m.wsMessagesTotal.WithLabelValues(direction, method).Inc()
}

// ObserveQuery records a finished search. kind is "empty" or "search".
func (m *MetricsService) ObserveQuery(kind, outcome string) {
	m.queriesTotal.WithLabelValues(kind, outcome).Inc()
}

// IncResultsPushed counts a result pushed into category.
func (m *MetricsService) IncResultsPushed(category string) {
	m.resultsPushed.WithLabelValues(category).Inc()
}

// ObservePreview records a finished preview.
func (m *MetricsService) ObservePreview(outcome string) {
	m.previewsTotal.WithLabelValues(outcome).Inc()
}

// ObserveActivation records a finished activation.
func (m *MetricsService) ObserveActivation(action, status string) {
	m.activationsTotal.WithLabelValues(action, status).Inc()
}

// ObserveCacheLookup records a track cache hit or miss.
func (m *MetricsService) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRequest records a SoundCloud API request. It lets the service act as
// the client's request observer.
func (m *MetricsService) ObserveRequest(endpoint, outcome string, duration time.Duration) {
	m.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	if duration > 0 {
		m.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

// ObserveDatabaseOperation records metrics for a database operation.
func (m *MetricsService) ObserveDatabaseOperation(database, operation string, duration time.Duration, err error) {
	m.databaseOperations.WithLabelValues(database, operation).Inc()
	m.databaseLatency.WithLabelValues(database, operation).Observe(duration.Seconds())

	if err != nil {
		m.databaseErrors.WithLabelValues(database, operation).Inc()
	}
}
