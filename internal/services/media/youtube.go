// Package media provides the YouTube video search shown next to SoundCloud results.
package media

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	"norelock.dev/soundscope/internal/models"
	"norelock.dev/soundscope/internal/utils"
)

// VideoSearcher finds videos matching a free-text query.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, query string, limit int64) ([]models.Video, error)
}

// YouTubeService implements VideoSearcher with the YouTube Data API.
type YouTubeService struct {
	apiKey  string
	options []option.ClientOption
	logger  *utils.Logger

	once    sync.Once
	service *youtube.Service
	initErr error
}

// NewYouTubeService creates a YouTube search service. Extra client options are
// appended after the API key, so tests can point it at a fake endpoint.
func NewYouTubeService(apiKey string, logger *utils.Logger, opts ...option.ClientOption) *YouTubeService {
	return &YouTubeService{
		apiKey:  apiKey,
		options: opts,
		logger:  logger.Named("youtube"),
	}
}

func (s *YouTubeService) client(ctx context.Context) (*youtube.Service, error) {
	s.once.Do(func() {
		opts := append([]option.ClientOption{option.WithAPIKey(s.apiKey)}, s.options...)
		s.service, s.initErr = youtube.NewService(context.WithoutCancel(ctx), opts...)
		if s.initErr != nil {
			s.logger.Error("Failed to create YouTube service", s.initErr)
		}
	})
	return s.service, s.initErr
}

// SearchVideos searches the music category for videos matching query.
func (s *YouTubeService) SearchVideos(ctx context.Context, query string, limit int64) ([]models.Video, error) {
	s.logger.Debug("Searching YouTube", "query", query, "limit", limit)

	service, err := s.client(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	response, err := service.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(limit).
		VideoCategoryId("10").
		Context(ctx).
		Do()
	if err != nil {
		s.logger.Error("Failed to search YouTube", err, "query", query)
		return nil, fmt.Errorf("failed to search YouTube: %w", err)
	}

	videos := make([]models.Video, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Id.Kind != "youtube#video" || item.Snippet == nil {
			continue
		}
		videos = append(videos, models.Video{
			ID:          item.Id.VideoId,
			Title:       item.Snippet.Title,
			Channel:     item.Snippet.ChannelTitle,
			Description: item.Snippet.Description,
			Thumbnail:   bestThumbnail(item.Snippet.Thumbnails),
		})
	}

	return videos, nil
}

// bestThumbnail returns the best quality thumbnail URL.
func bestThumbnail(thumbnails *youtube.ThumbnailDetails) string {
	if thumbnails == nil {
		return ""
	}

	for _, t := range []*youtube.Thumbnail{
		thumbnails.Maxres,
		thumbnails.High,
		thumbnails.Standard,
		thumbnails.Medium,
		thumbnails.Default,
	} {
		if t != nil && t.Url != "" {
			return t.Url
		}
	}
	return ""
}
