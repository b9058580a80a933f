package methods

import (
	"context"
	"sync"

	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/rpc"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/utils"
)

// ScopeHandler handles the search, preview and activation RPC methods.
type ScopeHandler struct {
	scope  *scope.Scope
	logger *utils.Logger
}

// NewScopeHandler creates a new ScopeHandler.
func NewScopeHandler(s *scope.Scope, logger *utils.Logger) *ScopeHandler {
	return &ScopeHandler{
		scope:  s,
		logger: logger.Named("scope_methods"),
	}
}

// RegisterMethods registers scope RPC methods with the router.
func (h *ScopeHandler) RegisterMethods(hr rpc.HandlerRegistry) {
	rpc.Register(hr, rpc.MethodScopeSearch, h.Search)
	rpc.Register(hr, rpc.MethodScopePreview, h.Preview)
	rpc.Register(hr, rpc.MethodScopeActivate, h.Activate)
	rpc.Register(hr, rpc.MethodScopeCancel, h.Cancel)
	rpc.Register(hr, rpc.MethodScopeDepartments, h.Departments)

	admin := hr.Wrap(rpc.RoleMiddleware(auth.RoleAdmin))
	rpc.RegisterNoParams(admin, rpc.MethodCacheClear, h.ClearCache)
}

// SearchParams represents the parameters for the scope.search method.
type SearchParams struct {
	models.SearchRequest

	// QueryID names the query for scope.cancel and the streamed notifications.
	// One is generated when empty.
	QueryID string `json:"queryId" validate:"max=64"`

	// Stream sends results as scope.result notifications instead of in the response.
	Stream bool `json:"stream"`
}

// SearchResult is the response of a streamed search.
type SearchResult struct {
	QueryID     string             `json:"queryId"`
	Departments *models.Department `json:"departments,omitempty"`
	Categories  []*models.Category `json:"categories"`
	Count       int                `json:"count"`
	Error       string             `json:"error,omitempty"`
	Cancelled   bool               `json:"cancelled,omitempty"`
}

// CategoryEvent is sent before the first streamed result of a category.
type CategoryEvent struct {
	QueryID  string           `json:"queryId"`
	Category *models.Category `json:"category"`
}

// ResultEvent carries one streamed result.
type ResultEvent struct {
	QueryID string         `json:"queryId"`
	Result  *models.Result `json:"result"`
}

// Search runs a query. Streamed searches push every result to the client as
// it arrives and answer with a summary once the query has finished.
func (h *ScopeHandler) Search(ctx context.Context, client *rpc.Client, p *SearchParams) (any, error) {
	queryID := p.QueryID
	if queryID == "" {
		queryID = utils.NewID("q")
	}

	query := h.scope.Search(p.SearchRequest, h.metadata(client, p.Locale, queryID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	release, ok := client.Track(queryID, func() {
		query.Cancelled()
		cancel()
	})
	if !ok {
		return nil, rpc.NewError(rpc.ErrInvalidParams, "Query id already in use", queryID)
	}
	defer release()

	collector := scope.NewSearchCollector(queryID, 0)
	if p.Stream {
		var (
			mu        sync.Mutex
			announced = make(map[string]bool)
		)
		collector.OnPush = func(cat *models.Category, res *models.Result) bool {
			mu.Lock()
			first := cat != nil && !announced[cat.ID]
			if first {
				announced[cat.ID] = true
			}
			mu.Unlock()

			if first && !client.SendNotification(rpc.EventScopeCategory, CategoryEvent{QueryID: queryID, Category: cat}) {
				return false
			}
			return client.SendNotification(rpc.EventScopeResult, ResultEvent{QueryID: queryID, Result: res})
		}
	}

	query.Run(ctx, collector)
	reply := collector.Reply()

	if !p.Stream {
		return reply, nil
	}

	return SearchResult{
		QueryID:     reply.QueryID,
		Departments: reply.Departments,
		Categories:  reply.Categories,
		Count:       len(reply.Results),
		Error:       reply.Error,
		Cancelled:   ctx.Err() != nil,
	}, nil
}

// Preview builds the preview of a result.
func (h *ScopeHandler) Preview(ctx context.Context, client *rpc.Client, p *models.PreviewRequest) (any, error) {
	collector := scope.NewPreviewCollector()
	h.scope.Preview(p.Result, h.metadata(client, p.Locale, utils.NewID("pv"))).Run(ctx, collector)
	return collector.Reply(), nil
}

// Activate performs an action on a result.
func (h *ScopeHandler) Activate(ctx context.Context, client *rpc.Client, p *models.ActivateRequest) (any, error) {
	activation := h.scope.PerformAction(p.Result, h.metadata(client, p.Locale, utils.NewID("act")),
		p.WidgetID, p.ActionID, p.ScopeData)
	resp := activation.Activate(ctx)

	if resp.Status != models.ActivationNotHandled {
		event := ActivatedEvent{URI: p.Result.URI, ActionID: p.ActionID, Status: resp.Status}
		if err := client.NotifySession(rpc.EventScopeActivated, event); err != nil {
			h.logger.Debug("Activation not broadcast", "error", err)
		}
	}
	return resp, nil
}

// ActivatedEvent is broadcast to the session after a handled action.
type ActivatedEvent struct {
	URI      string                  `json:"uri"`
	ActionID string                  `json:"actionId"`
	Status   models.ActivationStatus `json:"status"`
}

// CancelParams represents the parameters for the scope.cancel method.
type CancelParams struct {
	QueryID string `json:"queryId" validate:"required,max=64"`
}

// Cancel stops a running query of the same connection. Unknown ids are not an error.
func (h *ScopeHandler) Cancel(ctx context.Context, client *rpc.Client, p *CancelParams) (any, error) {
	cancelled := client.CancelTask(p.QueryID)
	h.logger.Debug("Query cancel requested", "queryId", p.QueryID, "cancelled", cancelled)
	return map[string]bool{"cancelled": cancelled}, nil
}

// DepartmentsParams represents the parameters for the scope.departments method.
type DepartmentsParams struct {
	Locale string `json:"locale" validate:"locale"`
}

// Departments returns the department tree.
func (h *ScopeHandler) Departments(ctx context.Context, client *rpc.Client, p *DepartmentsParams) (any, error) {
	return h.scope.Departments(p.Locale), nil
}

// ClearCache drops cached track lists.
func (h *ScopeHandler) ClearCache(ctx context.Context, client *rpc.Client) (any, error) {
	h.scope.InvalidateCache(ctx)
	h.logger.Info("Track cache cleared", "subject", client.Subject)
	return map[string]bool{"cleared": true}, nil
}

func (h *ScopeHandler) metadata(client *rpc.Client, locale, requestID string) scope.Metadata {
	return scope.Metadata{
		Locale:    locale,
		Subject:   client.Subject,
		RequestID: requestID,
	}
}
