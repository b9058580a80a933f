package scope

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"
	"norelock.dev/soundscope/internal/accounts"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/soundcloud"
	"norelock.dev/soundscope/internal/utils"
)

// errStopped means the reply refused a push, so the query was cancelled.
var errStopped = errors.New("scope: reply stopped accepting results")

// Query runs one search.
type Query struct {
	*invocation
	request models.SearchRequest
	query   string
}

func newQuery(s *Scope, req models.SearchRequest, meta Metadata) *Query {
	return &Query{
		invocation: newInvocation(s, meta, "query"),
		request:    req,
		query:      utils.NormalizeQuery(req.Query),
	}
}

// QueryString returns the trimmed query string.
func (q *Query) QueryString() string {
	return q.query
}

// Run pushes the departments, categories and results of the query to reply.
// Client failures end up as a single reply.Error.
func (q *Query) Run(ctx context.Context, reply SearchReply) {
	start := time.Now()
	kind := lo.Ternary(q.query == "", "surfacing", "search")

	client, cfg := q.open(ctx)
	defer q.close()

	reply.RegisterDepartments(Departments(q.printer))

	var err error
	if q.query == "" {
		err = q.surfacing(ctx, client, cfg.Authenticated(), reply)
	} else {
		err = q.search(ctx, client, cfg.Authenticated(), reply)
	}

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errStopped), isCancellation(err):
		outcome = "cancelled"
	default:
		outcome = "error"
		q.logger.Error("Query failed", err, "query", q.query, "department", q.request.Department)
		reply.Error(q.opaque(err))
	}

	q.scope.metrics.ObserveQuery(kind, outcome)
	q.logger.Debug("Query finished", "kind", kind, "outcome", outcome, "duration", time.Since(start))
}

func (q *Query) limit() int {
	return lo.Ternary(q.request.Limit > 0, q.request.Limit, q.scope.cfg.Scope.SearchLimit)
}

// surfacing fills the page shown before anything is typed: the user's
// stream or a login nag, then the explore list of the selected department.
func (q *Query) surfacing(ctx context.Context, client *soundcloud.Client, authenticated bool, reply SearchReply) error {
	limit := q.limit()

	var stream *soundcloud.Future[[]models.Track]
	if authenticated {
		stream = client.StreamTracks(ctx, limit)
	}
	explore := q.startSearch(ctx, client, "", departmentGenre(q.request.Department), authenticated, limit)

	if authenticated {
		tracks, err := soundcloud.GetOrThrow(stream, q.scope.timeout())
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			tracks, err = soundcloud.GetOrThrow(client.Favorites(ctx, limit), q.scope.timeout())
			if err != nil {
				return err
			}
		}
		cat := reply.RegisterCategory(CategoryStream, q.printer.Sprintf(msgStream), "", trackRenderer())
		if err := q.pushTracks(reply, cat, tracks); err != nil {
			return err
		}
	} else if q.scope.cfg.Features.EnableLoginNag {
		if err := q.pushNag(reply); err != nil {
			return err
		}
	}

	tracks, err := q.finishSearch(ctx, explore)
	if err != nil {
		return err
	}
	cat := reply.RegisterCategory(CategoryExplore, q.printer.Sprintf(msgExplore), "", trackRenderer())
	return q.pushTracks(reply, cat, tracks)
}

type videoSearch struct {
	videos []models.Video
	err    error
}

func (q *Query) search(ctx context.Context, client *soundcloud.Client, authenticated bool, reply SearchReply) error {
	var videos chan videoSearch
	if q.scope.videos != nil {
		videos = make(chan videoSearch, 1)
		videoCtx, cancel := context.WithTimeout(ctx, q.scope.timeout())
		go func() {
			defer cancel()
			found, err := q.scope.videos.SearchVideos(videoCtx, q.query, q.scope.cfg.YouTube.MaxResults)
			videos <- videoSearch{videos: found, err: err}
		}()
	}

	tracks, err := q.finishSearch(ctx, q.startSearch(ctx, client, q.query, "", authenticated, q.limit()))
	if err != nil {
		return err
	}
	cat := reply.RegisterCategory(CategorySearch, q.printer.Sprintf(msgSearch), "", trackRenderer())
	if err := q.pushTracks(reply, cat, tracks); err != nil {
		return err
	}

	if videos == nil {
		return nil
	}

	var found videoSearch
	select {
	case found = <-videos:
	case <-ctx.Done():
		return ctx.Err()
	}
	if found.err != nil {
		// The YouTube category is optional; SoundCloud results stand on their own.
		q.logger.Warn("YouTube search failed", "error", found.err)
		return nil
	}

	cat = reply.RegisterCategory(CategoryYouTube, q.printer.Sprintf(msgYouTube), "", videoRenderer())
	for _, video := range found.videos {
		if !q.push(reply, cat, videoResult(cat, video)) {
			return errStopped
		}
	}
	return nil
}

type trackSearch struct {
	future *soundcloud.Future[[]models.Track]
	key    string
	cached bool
}

// startSearch returns the cached list when there is one, or starts the request.
func (q *Query) startSearch(ctx context.Context, client *soundcloud.Client, query, genre string, authenticated bool, limit int) trackSearch {
	key := trackCacheKey(query, genre, authenticated) + ":" + strconv.Itoa(limit)

	if q.scope.cache != nil {
		tracks, ok := q.scope.cache.Get(ctx, key)
		q.scope.metrics.ObserveCacheLookup(ok)
		if ok {
			return trackSearch{future: soundcloud.Resolved(tracks), key: key, cached: true}
		}
	}

	return trackSearch{future: client.SearchTracks(ctx, query, genre, limit), key: key}
}

func (q *Query) finishSearch(ctx context.Context, search trackSearch) ([]models.Track, error) {
	tracks, err := soundcloud.GetOrThrow(search.future, q.scope.timeout())
	if err != nil {
		return nil, err
	}

	if !search.cached && q.scope.cache != nil {
		if err := q.scope.cache.Set(ctx, search.key, tracks); err != nil {
			q.logger.Warn("Failed to cache tracks", "key", search.key, "error", err)
		}
	}
	return tracks, nil
}

func (q *Query) pushTracks(reply SearchReply, cat *models.Category, tracks []models.Track) error {
	for _, track := range tracks {
		if !q.push(reply, cat, trackResult(cat, track)) {
			return errStopped
		}
	}
	return nil
}

func (q *Query) push(reply SearchReply, cat *models.Category, res *models.Result) bool {
	if !reply.Push(res) {
		return false
	}
	q.scope.metrics.IncResultsPushed(cat.ID)
	return true
}

func (q *Query) pushNag(reply SearchReply) error {
	cat := reply.RegisterCategory(CategoryNag, "", "", nagRenderer())

	res := models.NewResult(cat)
	res.URI = "scope://soundcloud?department=" + url.QueryEscape(q.request.Department)
	res.Title = q.printer.Sprintf(msgLogin)
	res.Set("online_account_details", models.OnlineAccountDetails{
		ServiceName:       accounts.ServiceName,
		ServiceType:       "sharing",
		ProviderName:      accounts.ServiceName,
		LoginPassedAction: models.LoginInvalidateResults,
		LoginFailedAction: models.LoginDoNothing,
	})

	if !q.push(reply, cat, res) {
		return errStopped
	}
	return nil
}

// trackResult maps a track to a result. The attributes carry everything the
// preview and activation need, since the host only hands the result back.
func trackResult(cat *models.Category, t models.Track) *models.Result {
	res := models.NewResult(cat)
	res.URI = strconv.FormatUint(uint64(t.ID), 10)
	res.Title = t.Title
	res.Art = lo.CoalesceOrEmpty(t.WaveformURL, t.ArtworkURL, t.User.AvatarURL)

	res.Set("mascot", t.ArtworkURL)
	res.Set("subtitle", t.User.Username)
	res.Set("description", t.Description)

	res.Set("id", t.ID)
	res.Set("userid", t.User.ID)
	res.Set("username", t.User.Username)
	res.Set("duration", t.DurationSeconds())
	res.Set("stream-url", t.StreamURL)
	res.Set("purchase-url", t.PurchaseURL)
	res.Set("video-url", t.VideoURL)
	res.Set("permalink-url", t.PermalinkURL)
	res.Set("streamable", t.Streamable)
	res.Set("playback-count", t.PlaybackCount)
	res.Set("favoritings-count", t.FavoritingsCount)
	res.Set("comment-count", t.CommentCount)
	res.Set("genre", t.Genre)
	res.Set("label", t.LabelName)
	res.Set("license", t.License)
	res.Set("created-at", t.CreatedAt)

	res.Set("attributes", lo.FilterMap([]string{t.Genre, formatDuration(t.DurationSeconds())},
		func(v string, _ int) (map[string]string, bool) {
			return map[string]string{"value": v}, v != ""
		}))

	return res
}

func videoResult(cat *models.Category, v models.Video) *models.Result {
	res := models.NewResult(cat)
	res.URI = v.WatchURL()
	res.Title = v.Title
	res.Art = v.Thumbnail

	res.Set("subtitle", v.Channel)
	res.Set("username", v.Channel)
	res.Set("description", v.Description)
	res.Set("video-url", v.WatchURL())
	res.Set("youtube-id", v.ID)

	return res
}

// formatDuration renders seconds as m:ss, or "" for zero.
func formatDuration(seconds uint) string {
	if seconds == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
