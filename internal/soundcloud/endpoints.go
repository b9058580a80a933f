package soundcloud

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"norelock.dev/soundscope/internal/models"
)

func decodeWith[T any](build func(any) T) func(*response, error) (T, error) {
	return func(resp *response, err error) (T, error) {
		if err != nil {
			var zero T
			return zero, err
		}
		return build(resp.root), nil
	}
}

// accepted is used by write calls. Their bodies may be XML or empty, so only the status counts.
func accepted(_ *response, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}

// exists turns a 404 into false instead of an error.
func exists(_ *response, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case IsStatus(err, http.StatusNotFound):
		return false, nil
	default:
		return false, err
	}
}

func limitParams(limit int) url.Values {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	return params
}

func idPath(prefix string, id uint, suffix string) string {
	return prefix + strconv.FormatUint(uint64(id), 10) + suffix
}

// SearchTracks searches public tracks. Empty query or genre are left out of the request.
func (c *Client) SearchTracks(ctx context.Context, query, genre string, limit int) *Future[[]models.Track] {
	params := limitParams(limit)
	if query != "" {
		params.Set("q", query)
	}
	if genre != "" {
		params.Set("genres", genre)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "tracks",
		path:   "/tracks.json",
		params: params,
	}, decodeWith(models.ParseTracks))
}

// StreamTracks returns the tracks of the authenticated user's stream.
func (c *Client) StreamTracks(ctx context.Context, limit int) *Future[[]models.Track] {
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "stream",
		path:   "/me/activities/tracks/affiliated.json",
		params: limitParams(limit),
	}, decodeWith(streamOrigins))
}

// streamOrigins unwraps {"collection": [{"origin": {...}}]} into its tracks.
func streamOrigins(root any) []models.Track {
	obj, _ := root.(map[string]any)
	collection, _ := obj["collection"].([]any)

	origins := make([]any, 0, len(collection))
	for _, item := range collection {
		if entry, ok := item.(map[string]any); ok {
			origins = append(origins, entry["origin"])
		}
	}
	return models.ParseTracks(origins)
}

// Favorites returns the tracks liked by the authenticated user.
func (c *Client) Favorites(ctx context.Context, limit int) *Future[[]models.Track] {
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "favorites",
		path:   "/me/favorites.json",
		params: limitParams(limit),
	}, decodeWith(models.ParseTracks))
}

// Track fetches a single track.
func (c *Client) Track(ctx context.Context, id uint) *Future[models.Track] {
	if id == 0 {
		return Failed[models.Track](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "track",
		path:   idPath("/tracks/", id, ".json"),
	}, decodeWith(models.NewTrack))
}

// User fetches a single user.
func (c *Client) User(ctx context.Context, id uint) *Future[models.User] {
	if id == 0 {
		return Failed[models.User](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "user",
		path:   idPath("/users/", id, ".json"),
	}, decodeWith(models.NewUser))
}

// Me fetches the authenticated user.
func (c *Client) Me(ctx context.Context) *Future[models.User] {
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "me",
		path:   "/me.json",
	}, decodeWith(models.NewUser))
}

// UserTracks lists the tracks uploaded by a user.
func (c *Client) UserTracks(ctx context.Context, id uint, limit int) *Future[[]models.Track] {
	if id == 0 {
		return Failed[[]models.Track](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "user_tracks",
		path:   idPath("/users/", id, "/tracks.json"),
		params: limitParams(limit),
	}, decodeWith(models.ParseTracks))
}

// Comments lists the comments of a track.
func (c *Client) Comments(ctx context.Context, trackID uint, limit int) *Future[[]models.Comment] {
	if trackID == 0 {
		return Failed[[]models.Comment](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "comments",
		path:   idPath("/tracks/", trackID, "/comments.json"),
		params: limitParams(limit),
	}, decodeWith(models.ParseComments))
}

// PostComment comments on a track as the authenticated user.
func (c *Client) PostComment(ctx context.Context, trackID uint, body string) *Future[bool] {
	if trackID == 0 {
		return Failed[bool](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodPost,
		name:   "post_comment",
		path:   idPath("/tracks/", trackID, "/comments.json"),
		form:   url.Values{"comment[body]": {body}},
	}, accepted)
}

// LikeTrack adds a track to the authenticated user's favorites.
func (c *Client) LikeTrack(ctx context.Context, trackID uint) *Future[bool] {
	return c.favorite(ctx, http.MethodPut, "like", trackID)
}

// DeleteLikeTrack removes a track from the authenticated user's favorites.
func (c *Client) DeleteLikeTrack(ctx context.Context, trackID uint) *Future[bool] {
	return c.favorite(ctx, http.MethodDelete, "delete_like", trackID)
}

// IsTrackLiked reports whether the track is among the authenticated user's favorites.
func (c *Client) IsTrackLiked(ctx context.Context, trackID uint) *Future[bool] {
	if trackID == 0 {
		return Failed[bool](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "is_liked",
		path:   idPath("/me/favorites/", trackID, ".json"),
	}, exists)
}

func (c *Client) favorite(ctx context.Context, method, name string, trackID uint) *Future[bool] {
	if trackID == 0 {
		return Failed[bool](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: method,
		name:   name,
		path:   idPath("/me/favorites/", trackID, ".json"),
	}, accepted)
}

// FollowUser follows a user as the authenticated user.
func (c *Client) FollowUser(ctx context.Context, userID uint) *Future[bool] {
	return c.following(ctx, http.MethodPut, "follow", userID)
}

// UnfollowUser stops following a user.
func (c *Client) UnfollowUser(ctx context.Context, userID uint) *Future[bool] {
	return c.following(ctx, http.MethodDelete, "unfollow", userID)
}

// IsFollowing reports whether the authenticated user follows userID.
func (c *Client) IsFollowing(ctx context.Context, userID uint) *Future[bool] {
	if userID == 0 {
		return Failed[bool](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: http.MethodGet,
		name:   "is_following",
		path:   idPath("/me/followings/", userID, ".json"),
	}, exists)
}

func (c *Client) following(ctx context.Context, method, name string, userID uint) *Future[bool] {
	if userID == 0 {
		return Failed[bool](ErrInvalidID)
	}
	return submit(c, ctx, request{
		method: method,
		name:   name,
		path:   idPath("/me/followings/", userID, ".json"),
	}, accepted)
}
