// Package middleware contains HTTP middleware for the API.
package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"norelock.dev/soundscope/internal/utils"
)

// HTTPMetrics receives per-request measurements.
type HTTPMetrics interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
	IncHTTPRequestsInProgress(method, path string)
	DecHTTPRequestsInProgress(method, path string)
}

// LoggerMiddleware handles request logging and metrics for the API.
type LoggerMiddleware struct {
	logger  *utils.Logger
	metrics HTTPMetrics
}

// NewLoggerMiddleware creates a new logger middleware. metrics may be nil.
func NewLoggerMiddleware(logger *utils.Logger, metrics HTTPMetrics) *LoggerMiddleware {
	return &LoggerMiddleware{
		logger:  logger.Named("http"),
		metrics: metrics,
	}
}

// Logger is a middleware that logs HTTP requests.
func (m *LoggerMiddleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		if m.metrics != nil {
			m.metrics.IncHTTPRequestsInProgress(r.Method, "inflight")
			defer m.metrics.DecHTTPRequestsInProgress(r.Method, "inflight")
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)

		// The route pattern keeps the label set bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		if m.metrics != nil {
			m.metrics.ObserveHTTPRequest(r.Method, path, rw.statusCode, duration)
		}

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", duration.String(),
			"requestId", chimw.GetReqID(r.Context()),
			"ip", utils.GetRequestIP(r),
			"userAgent", r.UserAgent(),
		}
		if rw.statusCode >= http.StatusInternalServerError {
			m.logger.Warn("HTTP request", fields...)
		} else {
			m.logger.Info("HTTP request", fields...)
		}
	})
}

// responseWriter is a wrapper around http.ResponseWriter that captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

// WriteHeader captures the status code and calls the underlying ResponseWriter's WriteHeader.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
