package scope

import (
	"context"
	"time"

	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/soundcloud"
	"norelock.dev/soundscope/internal/utils"
)

// Activation performs one social action on a result.
type Activation struct {
	*invocation
	result    models.Result
	widgetID  string
	actionID  string
	scopeData map[string]any
}

func newActivation(s *Scope, result models.Result, meta Metadata, widgetID, actionID string, scopeData map[string]any) *Activation {
	return &Activation{
		invocation: newInvocation(s, meta, "activation"),
		result:     result,
		widgetID:   widgetID,
		actionID:   actionID,
		scopeData:  scopeData,
	}
}

// handledActions are the action ids Activate understands.
var handledActions = map[string]bool{
	models.ActionCommented:  true,
	models.ActionLike:       true,
	models.ActionDeleteLike: true,
	models.ActionFollow:     true,
	models.ActionUnfollow:   true,
}

// Activate performs the action. Handled actions answer show_preview even
// when they fail, so the host re-renders the preview with the current state.
func (a *Activation) Activate(ctx context.Context) models.ActivationResponse {
	if !handledActions[a.actionID] {
		a.scope.metrics.ObserveActivation(a.actionID, string(models.ActivationNotHandled))
		return models.ActivationResponse{Status: models.ActivationNotHandled}
	}

	trackID := a.result.Uint("id")
	userID := a.result.Uint("userid")
	activity := models.NewActivity(a.meta.RequestID, a.actionID, trackID, userID)
	activity.Subject = a.meta.Subject

	start := time.Now()
	status, err := a.perform(ctx, activity)
	activity.Duration = time.Since(start)
	activity.Success = err == nil && status
	if err != nil {
		activity.Error = err.Error()
		a.logger.Error("Action failed", err, "action", a.actionID, "widget", a.widgetID, "id", trackID, "userid", userID)
	} else {
		a.logger.Info("Action performed", "action", a.actionID, "widget", a.widgetID, "id", trackID, "userid", userID, "status", status)
	}

	a.record(ctx, activity)
	a.scope.metrics.ObserveActivation(a.actionID, string(models.ActivationShowPreview))
	return models.ActivationResponse{Status: models.ActivationShowPreview}
}

func (a *Activation) perform(ctx context.Context, activity *models.Activity) (bool, error) {
	if a.scope.limiter != nil {
		key := a.meta.Subject
		if key == "" {
			key = "anonymous"
		}
		allowed, err := a.scope.limiter.Allow(ctx, key)
		if err != nil {
			a.logger.Warn("Rate limiter unavailable, allowing action", "error", err)
		} else if !allowed {
			return false, models.ErrTooManyRequests
		}
	}

	var body string
	if a.actionID == models.ActionCommented {
		raw, _ := a.scopeData["comment"].(string)
		body = utils.SanitizeComment(raw)
		if body == "" {
			return false, models.ErrEmptyComment
		}
		activity.Comment = body
	}

	client, _ := a.open(ctx)
	defer a.close()

	var future *soundcloud.Future[bool]
	switch a.actionID {
	case models.ActionCommented:
		future = client.PostComment(ctx, activity.TrackID, body)
	case models.ActionLike:
		future = client.LikeTrack(ctx, activity.TrackID)
	case models.ActionDeleteLike:
		future = client.DeleteLikeTrack(ctx, activity.TrackID)
	case models.ActionFollow:
		future = client.FollowUser(ctx, activity.UserID)
	case models.ActionUnfollow:
		future = client.UnfollowUser(ctx, activity.UserID)
	}

	return soundcloud.GetOrThrow(future, a.scope.timeout())
}

// record stores the activity. The activity log is best effort.
func (a *Activation) record(ctx context.Context, activity *models.Activity) {
	if a.scope.activities == nil {
		return
	}
	if err := utils.Validate(activity); err != nil {
		a.logger.Warn("Invalid activity record", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.scope.activities.Create(ctx, activity); err != nil {
		a.logger.Warn("Failed to record activity", "action", activity.Action, "error", err)
	}
}
