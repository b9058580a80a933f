package soundcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"
	"norelock.dev/soundscope/internal/utils"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// Observer receives one call per finished request.
type Observer interface {
	ObserveRequest(endpoint, outcome string, duration time.Duration)
}

// Request outcomes reported to the Observer.
const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
	OutcomeCancelled = "cancelled"
	OutcomeTimeout   = "timeout"
	OutcomeClosed    = "closed"
)

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, time.Duration) {}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *utils.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the request observer, typically the metrics service.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithQueueSize sets how many requests may wait for the worker.
func WithQueueSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

type request struct {
	method string
	// name is the endpoint label used for logging and metrics.
	name   string
	path   string
	params url.Values
	form   url.Values
}

type response struct {
	status int
	root   any
}

type job struct {
	ctx     context.Context
	req     request
	deliver func(*response, error)
}

// Client issues requests against the API from a single worker goroutine.
// Every call returns a Future resolved by that worker.
type Client struct {
	config    *Config
	http      *http.Client
	logger    *utils.Logger
	observer  Observer
	queueSize int

	jobs   chan job
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	cancelled  atomic.Bool
	inflightMu sync.Mutex
	inflight   context.CancelFunc
}

// NewClient starts a client and its worker.
func NewClient(config *Config, opts ...Option) *Client {
	c := &Client{
		config:    config,
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    utils.GetLogger(),
		observer:  nopObserver{},
		queueSize: 16,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("soundcloud").With("client", utils.NewID("c"))
	c.jobs = make(chan job, c.queueSize)

	c.wg.Add(1)
	go c.run()

	return c
}

// Config returns the shared configuration.
func (c *Client) Config() *Config {
	return c.config
}

// Cancel flags the client as cancelled. The request in flight is aborted and
// queued requests fail with ErrCancelled. Futures that already resolved keep
// their value.
func (c *Client) Cancel() {
	c.cancelled.Store(true)

	c.inflightMu.Lock()
	if c.inflight != nil {
		c.inflight()
	}
	c.inflightMu.Unlock()
}

// Reset clears the cancellation flag.
func (c *Client) Reset() {
	c.cancelled.Store(false)
}

// Cancelled reports whether Cancel was called since the last Reset.
func (c *Client) Cancelled() bool {
	return c.cancelled.Load()
}

// Close stops the worker. The request in flight and everything still queued
// fail with ErrClosed. Close is idempotent.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)

	c.inflightMu.Lock()
	if c.inflight != nil {
		c.inflight()
	}
	c.inflightMu.Unlock()

	c.wg.Wait()
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case j := <-c.jobs:
			c.execute(j)
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case j := <-c.jobs:
			c.observer.ObserveRequest(j.req.name, OutcomeClosed, 0)
			j.deliver(nil, ErrClosed)
		default:
			return
		}
	}
}

func (c *Client) setInflight(cancel context.CancelFunc) {
	c.inflightMu.Lock()
	c.inflight = cancel
	c.inflightMu.Unlock()
}

func (c *Client) execute(j job) {
	start := time.Now()

	if c.isClosed() {
		c.observer.ObserveRequest(j.req.name, OutcomeClosed, 0)
		j.deliver(nil, ErrClosed)
		return
	}
	if c.cancelled.Load() {
		c.observer.ObserveRequest(j.req.name, OutcomeCancelled, 0)
		j.deliver(nil, ErrCancelled)
		return
	}
	if err := j.ctx.Err(); err != nil {
		err = contextError(err)
		c.observer.ObserveRequest(j.req.name, outcome(err), 0)
		j.deliver(nil, err)
		return
	}

	if err := c.config.Refresh(j.ctx); err != nil {
		c.logger.Debug("Account status unavailable, using client id", "error", err)
	}
	settings := c.config.Snapshot()

	ctx, cancel := context.WithCancel(j.ctx)
	c.setInflight(cancel)
	resp, err := c.do(ctx, settings, j.req)
	c.setInflight(nil)
	cancel()

	if err != nil {
		err = c.classify(j.ctx, err)
	}

	c.observer.ObserveRequest(j.req.name, outcome(err), time.Since(start))
	if err != nil {
		c.logger.Debug("Request failed", "endpoint", j.req.name, "error", err, "duration", time.Since(start))
	}

	j.deliver(resp, err)
}

// classify maps aborted requests onto the client's sentinels.
// A request whose caller went away counts as cancelled, not as a transport failure.
func (c *Client) classify(ctx context.Context, err error) error {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr), errors.Is(err, ErrDecompress):
		return err
	case c.isClosed():
		return ErrClosed
	case c.cancelled.Load():
		return ErrCancelled
	case errors.Is(err, ErrCancelled):
		return err
	case ctx.Err() != nil:
		return contextError(ctx.Err())
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

// contextError maps a finished caller context onto ErrTimeout or ErrCancelled,
// keeping the context error in the chain.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &apiErr):
		return OutcomeHTTPError
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrClosed):
		return OutcomeClosed
	default:
		return OutcomeTransport
	}
}

func (c *Client) do(ctx context.Context, settings Settings, req request) (*response, error) {
	u, err := url.Parse(settings.APIRoot + req.path)
	if err != nil {
		return nil, err
	}

	query := u.Query()
	for key, values := range req.params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	if !settings.Authenticated {
		query.Set("client_id", settings.ClientID)
	}
	u.RawQuery = query.Encode()

	var body io.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if req.form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if settings.Authenticated {
		httpReq.Header.Set("Authorization", "Bearer "+settings.AccessToken)
	}
	httpReq.Header.Set("User-Agent", settings.UserAgent+" (gzip)")
	httpReq.Header.Set("Accept-Encoding", "gzip")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Request", "method", req.method, "uri", u.String())

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(&progressReader{
		r:         io.LimitReader(httpResp.Body, maxBodySize),
		cancelled: &c.cancelled,
	})
	if err != nil {
		return nil, err
	}

	raw, err = decompress(raw, httpResp.Header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompress, err)
	}

	resp := &response{status: httpResp.StatusCode, root: parseJSON(raw)}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, newAPIError(httpResp.StatusCode, resp.root)
	}
	return resp, nil
}

// progressReader aborts the body transfer once the client is cancelled.
type progressReader struct {
	r         io.Reader
	cancelled *atomic.Bool
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if p.cancelled.Load() {
		return 0, ErrCancelled
	}
	return p.r.Read(buf)
}

func decompress(raw []byte, header http.Header) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	gzipped := strings.Contains(strings.ToLower(header.Get("Content-Encoding")), "gzip") ||
		(len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b)
	if !gzipped {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(io.LimitReader(zr, maxBodySize))
}

// parseJSON decodes raw leniently: anything that is not valid JSON yields nil.
func parseJSON(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil
	}
	return root
}

// submit queues req and returns a future resolved by the worker through parse.
func submit[T any](c *Client, ctx context.Context, req request, parse func(*response, error) (T, error)) *Future[T] {
	f := newFuture[T]()
	if ctx == nil {
		ctx = context.Background()
	}

	j := job{
		ctx: ctx,
		req: req,
		deliver: func(resp *response, err error) {
			f.resolve(parse(resp, err))
		},
	}

	if c.isClosed() {
		j.deliver(nil, ErrClosed)
		return f
	}

	select {
	case c.jobs <- j:
		// A job queued while Close ran may have missed the worker's drain.
		select {
		case <-c.done:
			c.drain()
		default:
		}
	case <-ctx.Done():
		j.deliver(nil, contextError(ctx.Err()))
	case <-c.done:
		j.deliver(nil, ErrClosed)
	}
	return f
}
