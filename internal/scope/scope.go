// Package scope turns host-shell search, preview and activation requests into
// SoundCloud client calls and formats the answers as shell result records.
package scope

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/text/message"
	"norelock.dev/soundscope/internal/accounts"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/services/media"
	"norelock.dev/soundscope/internal/soundcloud"
	"norelock.dev/soundscope/internal/utils"
)

// settleTimeout bounds the wait for the first account status.
const settleTimeout = 5 * time.Second

// Metrics receives scope observations. *system.MetricsService implements it.
type Metrics interface {
	soundcloud.Observer
	ObserveQuery(kind, outcome string)
	IncResultsPushed(category string)
	ObservePreview(outcome string)
	ObserveActivation(action, status string)
	ObserveCacheLookup(hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, string, time.Duration) {}
func (nopMetrics) ObserveQuery(string, string)                  {}
func (nopMetrics) IncResultsPushed(string)                      {}
func (nopMetrics) ObservePreview(string)                        {}
func (nopMetrics) ObserveActivation(string, string)             {}
func (nopMetrics) ObserveCacheLookup(bool)                      {}

// ActivityRecorder persists performed social actions.
type ActivityRecorder interface {
	Create(ctx context.Context, activity *models.Activity) error
}

// Limiter bounds social actions per caller.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter adapts the in-process utils.RateLimiter to Limiter.
type LocalLimiter struct {
	limiter *utils.RateLimiter
}

// NewLocalLimiter allows actions per window for every caller.
func NewLocalLimiter(actions int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{limiter: utils.NewRateLimiter(window, actions)}
}

// Allow implements Limiter.
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.limiter.Allow(key), nil
}

// Cleanup forgets idle callers.
func (l *LocalLimiter) Cleanup() int {
	return l.limiter.Cleanup()
}

// Metadata describes the caller of a single request.
type Metadata struct {
	// Locale selects the message printer, e.g. "en-US".
	Locale string
	// Subject identifies the host-shell session, used for rate limiting and the activity log.
	Subject string
	// RequestID correlates logs, metrics and activity records.
	RequestID string
}

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the logger.
func WithLogger(logger *utils.Logger) Option {
	return func(s *Scope) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(s *Scope) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithAccounts sets the account-status provider.
func WithAccounts(source accounts.Source) Option {
	return func(s *Scope) {
		s.source = source
	}
}

// WithHTTPClient sets the HTTP client shared by every SoundCloud client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Scope) {
		s.httpClient = client
	}
}

// WithTrackCache caches explore and search track lists.
func WithTrackCache(cache *TrackCache) Option {
	return func(s *Scope) {
		s.cache = cache
	}
}

// WithVideoSearcher adds the YouTube category to non-empty searches.
func WithVideoSearcher(videos media.VideoSearcher) Option {
	return func(s *Scope) {
		s.videos = videos
	}
}

// WithActivityRecorder records every handled action.
func WithActivityRecorder(recorder ActivityRecorder) Option {
	return func(s *Scope) {
		s.activities = recorder
	}
}

// WithLimiter rate limits social actions.
func WithLimiter(limiter Limiter) Option {
	return func(s *Scope) {
		s.limiter = limiter
	}
}

// Scope owns the shared client configuration and creates a Query, Preview or
// Activation for each host request.
type Scope struct {
	cfg        *config.Config
	logger     *utils.Logger
	metrics    Metrics
	source     accounts.Source
	httpClient *http.Client
	cache      *TrackCache
	videos     media.VideoSearcher
	activities ActivityRecorder
	limiter    Limiter

	mu        sync.Mutex
	localizer *Localizer
	config    *soundcloud.Config
	ready     chan struct{}
	started   bool
	stopped   bool
	active    map[*soundcloud.Client]struct{}
}

// New creates a scope. Nothing is contacted until Start or the first request.
func New(cfg *config.Config, opts ...Option) *Scope {
	s := &Scope{
		cfg:     cfg,
		logger:  utils.GetLogger(),
		metrics: nopMetrics{},
		active:  make(map[*soundcloud.Client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scope")
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return s
}

// Start prepares localization and the account wiring, then settles the
// first account status in the background. Calling it again is a no-op.
func (s *Scope) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	localizer, err := NewLocalizer(s.cfg.Scope.Locale)
	if err != nil {
		return err
	}
	s.localizer = localizer
	s.ensureConfigLocked(ctx)
	s.started = true
	s.stopped = false

	s.logger.Info("Scope started",
		"apiRoot", s.cfg.SoundCloud.APIRoot,
		"accounts", !s.cfg.Scope.IgnoreAccounts && s.source != nil,
		"youtube", s.videos != nil,
		"cache", s.cache != nil,
	)
	return nil
}

// ensureConfigLocked builds the shared config once. The first account status
// is read in the background; requests wait for it through awaitConfig.
func (s *Scope) ensureConfigLocked(ctx context.Context) {
	if s.config != nil {
		return
	}

	source := s.source
	if s.cfg.Scope.IgnoreAccounts {
		source = nil
		s.logger.Info("Ignoring online accounts")
	}

	s.config = soundcloud.NewConfig(soundcloud.Settings{
		APIRoot:     s.cfg.SoundCloud.APIRoot,
		ClientID:    s.cfg.SoundCloud.ClientID,
		UserAgent:   s.cfg.SoundCloud.UserAgent,
		AccessToken: s.cfg.SoundCloud.AccessToken,
		Directory:   s.cfg.Scope.Directory,
	}, source)
	s.ready = make(chan struct{})

	go func(cfg *soundcloud.Config, ready chan struct{}) {
		defer close(ready)
		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if err := cfg.Refresh(settleCtx); err != nil {
			s.logger.Warn("Could not read account status, continuing anonymously", "error", err)
			return
		}
		s.logger.Info("Account status settled", "authenticated", cfg.Authenticated())
	}(s.config, s.ready)
}

// Stop cancels every running request. Requests created afterwards fail as cancelled.
func (s *Scope) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.started = false
	for client := range s.active {
		client.Cancel()
	}
	s.logger.Info("Scope stopped", "cancelled", len(s.active))
}

// Config returns the shared client configuration, building it if needed.
func (s *Scope) Config() *soundcloud.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureConfigLocked(context.Background())
	return s.config
}

// awaitConfig waits for the first account status and returns the config refreshed for this request.
func (s *Scope) awaitConfig(ctx context.Context) *soundcloud.Config {
	s.mu.Lock()
	s.ensureConfigLocked(ctx)
	cfg, ready := s.config, s.ready
	s.mu.Unlock()

	select {
	case <-ready:
	case <-ctx.Done():
		return cfg
	}

	if err := cfg.Refresh(ctx); err != nil {
		s.logger.Debug("Account refresh failed", "error", err)
	}
	return cfg
}

// InvalidateCache drops cached track lists. Called when the account changes.
func (s *Scope) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		s.logger.Warn("Failed to clear track cache", "error", err)
	}
}

// OnAccountChange reacts to a new account status from the account store.
func (s *Scope) OnAccountChange(creds accounts.Credentials) {
	s.logger.Info("Account changed", "service", creds.Service, "authenticated", creds.Authenticated())
	s.InvalidateCache(context.Background())
}

// Departments returns the department tree labelled for locale.
func (s *Scope) Departments(locale string) *models.Department {
	return Departments(s.printer(locale))
}

func (s *Scope) printer(locale string) *message.Printer {
	s.mu.Lock()
	if s.localizer == nil {
		localizer, err := NewLocalizer(s.cfg.Scope.Locale)
		if err != nil {
			s.logger.Warn("Invalid fallback locale, using English", "locale", s.cfg.Scope.Locale)
			localizer, _ = NewLocalizer("")
		}
		s.localizer = localizer
	}
	localizer := s.localizer
	s.mu.Unlock()

	if locale == "" {
		locale = s.cfg.Scope.Locale
	}
	return localizer.Printer(locale)
}

// newClient creates the per-request client. It is cancelled right away when the scope is stopped.
func (s *Scope) newClient(ctx context.Context) (*soundcloud.Client, *soundcloud.Config) {
	cfg := s.awaitConfig(ctx)

	client := soundcloud.NewClient(cfg,
		soundcloud.WithHTTPClient(s.httpClient),
		soundcloud.WithLogger(s.logger),
		soundcloud.WithObserver(s.metrics),
	)

	s.mu.Lock()
	if s.stopped {
		client.Cancel()
	}
	s.active[client] = struct{}{}
	s.mu.Unlock()

	return client, cfg
}

func (s *Scope) releaseClient(client *soundcloud.Client) {
	s.mu.Lock()
	delete(s.active, client)
	s.mu.Unlock()
	client.Close()
}

func (s *Scope) timeout() time.Duration {
	return s.cfg.Scope.RequestTimeout
}

// Search creates the query for req.
func (s *Scope) Search(req models.SearchRequest, meta Metadata) *Query {
	return newQuery(s, req, meta)
}

// Preview creates the preview of result.
func (s *Scope) Preview(result models.Result, meta Metadata) *Preview {
	return newPreview(s, result, meta)
}

// PerformAction creates the activation of actionID on result.
func (s *Scope) PerformAction(result models.Result, meta Metadata, widgetID, actionID string, scopeData map[string]any) *Activation {
	return newActivation(s, result, meta, widgetID, actionID, scopeData)
}
