package scope

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/text/message"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/soundcloud"
	"norelock.dev/soundscope/internal/utils"
)

// invocation is the per-request state shared by Query, Preview and Activation.
type invocation struct {
	scope   *Scope
	meta    Metadata
	logger  *utils.Logger
	printer *message.Printer

	mu        sync.Mutex
	client    *soundcloud.Client
	cancelled bool
}

func newInvocation(s *Scope, meta Metadata, kind string) *invocation {
	if meta.RequestID == "" {
		meta.RequestID = utils.NewID(kind)
	}
	return &invocation{
		scope:   s,
		meta:    meta,
		logger:  s.logger.With("request", meta.RequestID),
		printer: s.printer(meta.Locale),
	}
}

// open creates the client of this invocation.
func (i *invocation) open(ctx context.Context) (*soundcloud.Client, *soundcloud.Config) {
	client, cfg := i.scope.newClient(ctx)

	i.mu.Lock()
	i.client = client
	if i.cancelled {
		client.Cancel()
	}
	i.mu.Unlock()

	return client, cfg
}

func (i *invocation) close() {
	i.mu.Lock()
	client := i.client
	i.mu.Unlock()

	if client != nil {
		i.scope.releaseClient(client)
	}
}

// Cancelled cancels the outstanding client requests of the invocation.
func (i *invocation) Cancelled() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.cancelled = true
	if i.client != nil {
		i.client.Cancel()
	}
}

// ID returns the request id of the invocation.
func (i *invocation) ID() string {
	return i.meta.RequestID
}

func isCancellation(err error) bool {
	return errors.Is(err, soundcloud.ErrCancelled) ||
		errors.Is(err, soundcloud.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

// opaque collapses a client error into the single error surfaced to the host.
func (i *invocation) opaque(err error) error {
	if errors.Is(err, soundcloud.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewScopeError(err, i.printer.Sprintf(msgTimeout), http.StatusGatewayTimeout)
	}
	return models.NewScopeError(err, i.printer.Sprintf(msgRequestFailed), http.StatusBadGateway)
}
