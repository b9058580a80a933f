package scope

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/soundcloud"
	"norelock.dev/soundscope/internal/utils"
)

// Preview widget ids, in layout order.
const (
	WidgetHeader      = "header"
	WidgetArt         = "art"
	WidgetStatistics  = "statistics"
	WidgetTracks      = "tracks"
	WidgetActions     = "actions"
	WidgetComment     = "commented"
	WidgetDescription = "description"
	WidgetComments    = "comments"
)

// Preview renders one result.
type Preview struct {
	*invocation
	result models.Result
}

func newPreview(s *Scope, result models.Result, meta Metadata) *Preview {
	return &Preview{
		invocation: newInvocation(s, meta, "preview"),
		result:     result,
	}
}

// socialState is what an authenticated preview learns about the track before rendering.
type socialState struct {
	liked     *bool
	following *bool
	comments  []models.Comment
}

// Run pushes the layout and widgets of the preview to reply.
func (p *Preview) Run(ctx context.Context, reply PreviewReply) {
	start := time.Now()
	res := p.result

	client, cfg := p.open(ctx)
	defer p.close()

	settings := cfg.Snapshot()
	trackID := res.Uint("id")
	social := trackID != 0 && settings.Authenticated && p.scope.cfg.Features.EnableSocial

	var state socialState
	if social {
		state = p.loadSocial(ctx, client, trackID, res.Uint("userid"))
	}

	ids := []string{WidgetHeader, WidgetArt, WidgetStatistics, WidgetTracks, WidgetActions}
	if social {
		ids = append(ids, WidgetComment)
	}
	ids = append(ids, WidgetDescription)
	if len(state.comments) > 0 {
		ids = append(ids, WidgetComments)
	}

	layout := models.NewColumnLayout(1)
	layout.AddColumn(ids...)
	reply.RegisterLayout(layout)

	widgets := []*models.PreviewWidget{
		p.header(),
		p.art(),
		p.statistics(),
		p.tracks(settings),
		p.actions(state),
	}
	if social {
		widgets = append(widgets, p.commentInput())
	}
	widgets = append(widgets, p.description())
	if len(state.comments) > 0 {
		widgets = append(widgets, p.comments(state.comments))
	}

	outcome := lo.Ternary(reply.Push(widgets...), "ok", "cancelled")
	p.scope.metrics.ObservePreview(outcome)
	p.logger.Debug("Preview finished", "id", trackID, "social", social, "duration", time.Since(start))
}

// loadSocial asks for the like and follow state and the latest comments.
// Failures only drop the affected widgets.
func (p *Preview) loadSocial(ctx context.Context, client *soundcloud.Client, trackID, userID uint) socialState {
	var state socialState
	timeout := p.scope.timeout()

	liked := client.IsTrackLiked(ctx, trackID)
	var following *soundcloud.Future[bool]
	if userID != 0 {
		following = client.IsFollowing(ctx, userID)
	}
	var comments *soundcloud.Future[[]models.Comment]
	if limit := p.scope.cfg.Scope.CommentLimit; limit > 0 {
		comments = client.Comments(ctx, trackID, limit)
	}

	if v, err := soundcloud.GetOrThrow(liked, timeout); err == nil {
		state.liked = &v
	} else {
		p.logger.Warn("Could not read like state", "id", trackID, "error", err)
	}

	if following != nil {
		if v, err := soundcloud.GetOrThrow(following, timeout); err == nil {
			state.following = &v
		} else {
			p.logger.Warn("Could not read follow state", "userid", userID, "error", err)
		}
	}

	if comments != nil {
		if v, err := soundcloud.GetOrThrow(comments, timeout); err == nil {
			state.comments = v
		} else {
			p.logger.Warn("Could not read comments", "id", trackID, "error", err)
		}
	}

	return state
}

func (p *Preview) header() *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetHeader, "header")
	w.AddAttributeMapping("title", "title")
	w.AddAttributeMapping("subtitle", "username")
	return w
}

func (p *Preview) art() *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetArt, "image")
	w.AddAttributeMapping("source", "art")
	return w
}

func (p *Preview) statistics() *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetStatistics, "header")
	w.AddAttributeValue("title", p.printer.Sprintf(msgStatistics,
		p.result.Uint("playback-count"), p.result.Uint("favoritings-count")))
	return w
}

// tracks is only filled for streamable results.
func (p *Preview) tracks(settings soundcloud.Settings) *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetTracks, "audio")
	if !p.result.Bool("streamable") {
		return w
	}

	w.AddAttributeValue("tracks", []map[string]any{{
		"title":  p.result.Title,
		"source": signStreamURL(p.result.String("stream-url"), settings),
		"length": p.result.Uint("duration"),
	}})
	return w
}

// signStreamURL appends the credentials the stream endpoint expects.
func signStreamURL(raw string, settings soundcloud.Settings) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if settings.Authenticated {
		q.Set("oauth_token", settings.AccessToken)
	} else {
		q.Set("client_id", settings.ClientID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// links drops link attributes that fail validation. Play stays without a URI.
func (p *Preview) links() models.ResultLinks {
	links := p.result.Links()
	for field, reason := range utils.FormatValidationErrors(utils.Validate(links)) {
		p.logger.Debug("Dropping invalid link", "field", field, "reason", reason)
		links.Drop(field)
	}
	return links
}

type previewAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	URI   string `json:"uri,omitempty"`
}

func (p *Preview) actions(state socialState) *models.PreviewWidget {
	var actions []previewAction
	links := p.links()

	if links.Purchase != "" {
		actions = append(actions, previewAction{ID: "buy", Label: p.printer.Sprintf(msgBuy), URI: links.Purchase})
	}
	if links.Video != "" {
		actions = append(actions, previewAction{ID: "video", Label: p.printer.Sprintf(msgWatchVideo), URI: links.Video})
	}
	actions = append(actions, previewAction{
		ID:    "play",
		Label: p.printer.Sprintf(msgPlayInBrowser),
		URI:   links.Permalink,
	})

	if state.liked != nil {
		actions = append(actions, lo.Ternary(*state.liked,
			previewAction{ID: models.ActionDeleteLike, Label: p.printer.Sprintf(msgUnlike)},
			previewAction{ID: models.ActionLike, Label: p.printer.Sprintf(msgLike)},
		))
	}
	if state.following != nil {
		username := p.result.String("username")
		actions = append(actions, lo.Ternary(*state.following,
			previewAction{ID: models.ActionUnfollow, Label: p.printer.Sprintf(msgUnfollow, username)},
			previewAction{ID: models.ActionFollow, Label: p.printer.Sprintf(msgFollow, username)},
		))
	}

	w := models.NewPreviewWidget(WidgetActions, "actions")
	w.AddAttributeValue("actions", actions)
	return w
}

func (p *Preview) commentInput() *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetComment, "comment-input")
	w.AddAttributeValue("submit-label", p.printer.Sprintf(msgPostComment))
	return w
}

func (p *Preview) description() *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetDescription, "text")
	w.AddAttributeMapping("text", "description")
	return w
}

func (p *Preview) comments(comments []models.Comment) *models.PreviewWidget {
	w := models.NewPreviewWidget(WidgetComments, "expandable")
	total := max(p.result.Uint("comment-count"), uint(len(comments)))
	w.AddAttributeValue("title", p.printer.Sprintf(msgComments, total))
	w.AddAttributeValue("collapsed-widgets", 1)
	w.AddAttributeValue("widgets", lo.Map(comments, func(c models.Comment, _ int) *models.PreviewWidget {
		cw := models.NewPreviewWidget("comment-"+strconv.FormatUint(uint64(c.ID), 10), "comment")
		cw.AddAttributeValue("author", c.User.Username)
		cw.AddAttributeValue("subtitle", c.CreatedAt)
		cw.AddAttributeValue("comment", c.Body)
		cw.AddAttributeValue("source", c.GetArtwork())
		return cw
	}))
	return w
}
