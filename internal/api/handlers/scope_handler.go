package handlers

import (
	"net/http"

	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/scope"
	"norelock.dev/soundscope/internal/utils"
)

// ScopeHandler serves queries, previews and activations over REST.
type ScopeHandler struct {
	scope  *scope.Scope
	logger *utils.Logger
}

// NewScopeHandler creates a new scope handler.
func NewScopeHandler(s *scope.Scope, logger *utils.Logger) *ScopeHandler {
	return &ScopeHandler{
		scope:  s,
		logger: logger.Named("scope_handler"),
	}
}

// Search runs a query and responds with the collected reply.
// Query parameters: q, department, locale, limit.
func (h *ScopeHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := models.SearchRequest{
		Query:      q.Get("q"),
		Department: q.Get("department"),
		Locale:     q.Get("locale"),
		Limit:      utils.ParseInt(q.Get("limit"), 0),
	}
	if err := utils.Validate(&req); err != nil {
		utils.RespondWithValidationError(w, err)
		return
	}

	queryID := utils.NewID("q")
	collector := scope.NewSearchCollector(queryID, 0)
	h.scope.Search(req, h.metadata(r, req.Locale, queryID)).Run(r.Context(), collector)

	reply := collector.Reply()
	if reply.Error != "" {
		respondWithReplyError(w, reply.Error, reply)
		return
	}
	utils.RespondWithData(w, http.StatusOK, reply)
}

// Departments responds with the department tree. Query parameter: locale.
func (h *ScopeHandler) Departments(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if err := utils.ValidateVar(locale, "locale"); err != nil {
		utils.RespondWithValidationError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, h.scope.Departments(locale))
}

// Preview builds the preview of a result.
func (h *ScopeHandler) Preview(w http.ResponseWriter, r *http.Request, req *models.PreviewRequest) {
	collector := scope.NewPreviewCollector()
	h.scope.Preview(req.Result, h.metadata(r, req.Locale, utils.NewID("pv"))).Run(r.Context(), collector)

	reply := collector.Reply()
	if reply.Error != "" {
		respondWithReplyError(w, reply.Error, reply)
		return
	}
	utils.RespondWithData(w, http.StatusOK, reply)
}

// Activate performs an action on a result.
func (h *ScopeHandler) Activate(w http.ResponseWriter, r *http.Request, req *models.ActivateRequest) {
	activation := h.scope.PerformAction(req.Result, h.metadata(r, req.Locale, utils.NewID("act")),
		req.WidgetID, req.ActionID, req.ScopeData)
	utils.RespondWithData(w, http.StatusOK, activation.Activate(r.Context()))
}

// ClearCache drops cached track lists.
func (h *ScopeHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.scope.InvalidateCache(r.Context())
	h.logger.Info("Track cache cleared", "subject", SubjectFromRequest(r))
	utils.RespondWithData(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *ScopeHandler) metadata(r *http.Request, locale, requestID string) scope.Metadata {
	return scope.Metadata{
		Locale:    locale,
		Subject:   SubjectFromRequest(r),
		RequestID: requestID,
	}
}

// respondWithReplyError answers a failed query or preview with 502 and the
// partial reply, since results pushed before the failure stay valid.
func respondWithReplyError(w http.ResponseWriter, message string, partial any) {
	utils.RespondWithJSON(w, http.StatusBadGateway, utils.APIResponse{
		Success: false,
		Data:    partial,
		Error:   map[string]string{"message": message},
	})
}
