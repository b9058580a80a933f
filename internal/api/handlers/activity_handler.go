package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"norelock.dev/soundscope/internal/db/mongo/repositories"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/utils"
)

const defaultSummaryWindow = 24 * time.Hour

// ActivityHandler exposes the activity log to administrators.
type ActivityHandler struct {
	activities repositories.ActivityRepository
	logger     *utils.Logger
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(activities repositories.ActivityRepository, logger *utils.Logger) *ActivityHandler {
	return &ActivityHandler{
		activities: activities,
		logger:     logger.Named("activity_handler"),
	}
}

// List returns recent activities, newest first. Query parameters: track, skip, limit.
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit := Paging(r)

	var (
		activities []*models.Activity
		err        error
	)
	if track := utils.ParseUint(r.URL.Query().Get("track"), 0); track != 0 {
		activities, err = h.activities.FindByTrack(r.Context(), track, skip, limit)
	} else {
		activities, err = h.activities.Recent(r.Context(), skip, limit)
	}
	if err != nil {
		h.logger.Error("Failed to list activities", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list activities")
		return
	}
	if activities == nil {
		activities = []*models.Activity{}
	}

	utils.RespondWithData(w, http.StatusOK, map[string]any{
		"activities": activities,
		"skip":       skip,
		"limit":      limit,
	})
}

// Get returns a single activity.
func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	activity, err := h.activities.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrActivityNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "Activity not found")
			return
		}
		h.logger.Error("Failed to get activity", err, "id", id.Hex())
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get activity")
		return
	}
	utils.RespondWithData(w, http.StatusOK, activity)
}

// Summary aggregates activities per action. Query parameter: since (RFC 3339),
// defaulting to the last 24 hours.
func (h *ActivityHandler) Summary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultSummaryWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid since parameter")
			return
		}
		since = parsed
	}

	summary, err := h.activities.Summary(r.Context(), since)
	if err != nil {
		h.logger.Error("Failed to summarize activities", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to summarize activities")
		return
	}
	if summary == nil {
		summary = []models.ActivitySummary{}
	}

	utils.RespondWithData(w, http.StatusOK, map[string]any{
		"since":   since,
		"actions": summary,
	})
}
