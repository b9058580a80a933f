package scope

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/pkg/cache"
)

// TrackCache stores explore and search track lists as JSON.
type TrackCache struct {
	backend cache.Cache
	ttl     time.Duration
}

// NewTrackCache wraps backend. Entries live for ttl.
func NewTrackCache(backend cache.Cache, ttl time.Duration) *TrackCache {
	return &TrackCache{backend: backend, ttl: ttl}
}

func trackCacheKey(query, genre string, authenticated bool) string {
	auth := "anon"
	if authenticated {
		auth = "auth"
	}
	return strings.Join([]string{"tracks", auth, genre, strings.ToLower(query)}, ":")
}

// Get returns the cached list, if any.
func (c *TrackCache) Get(ctx context.Context, key string) ([]models.Track, bool) {
	raw, ok := c.backend.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var tracks []models.Track
	if err := json.Unmarshal(raw, &tracks); err != nil {
		return nil, false
	}
	return tracks, true
}

// Set stores tracks under key.
func (c *TrackCache) Set(ctx context.Context, key string, tracks []models.Track) error {
	raw, err := json.Marshal(tracks)
	if err != nil {
		return err
	}
	return c.backend.Set(ctx, key, raw, c.ttl)
}

// Clear drops every cached list.
func (c *TrackCache) Clear(ctx context.Context) error {
	return c.backend.Clear(ctx)
}
