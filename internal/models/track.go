package models

import "strings"

// Track is a SoundCloud track as returned by /tracks and friends.
type Track struct {
	ID               uint   `json:"id"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	LabelName        string `json:"label_name"`
	Duration         uint   `json:"duration"` // milliseconds
	License          string `json:"license"`
	CreatedAt        string `json:"created_at"` // date part only
	PlaybackCount    uint   `json:"playback_count"`
	FavoritingsCount uint   `json:"favoritings_count"`
	CommentCount     uint   `json:"comment_count"`
	RepostsCount     uint   `json:"reposts_count"`
	LikesCount       uint   `json:"likes_count"`
	ArtworkURL       string `json:"artwork_url"`
	WaveformURL      string `json:"waveform_url"`
	Streamable       bool   `json:"streamable"`
	Downloadable     bool   `json:"downloadable"`
	PermalinkURL     string `json:"permalink_url"`
	PurchaseURL      string `json:"purchase_url"`
	StreamURL        string `json:"stream_url"`
	DownloadURL      string `json:"download_url"`
	VideoURL         string `json:"video_url"`
	Genre            string `json:"genre"`
	OriginalFormat   string `json:"original_format"`
	URI              string `json:"uri"`
	User             User   `json:"user"`
}

// NewTrack builds a Track from a decoded JSON object. Missing or mistyped
// fields are left at their zero value.
func NewTrack(v any) Track {
	return Track{
		ID:               uintField(v, "id"),
		Title:            stringField(v, "title"),
		Description:      stringField(v, "description"),
		LabelName:        stringField(v, "label_name"),
		Duration:         uintField(v, "duration"),
		License:          stringField(v, "license"),
		CreatedAt:        dateOnly(stringField(v, "created_at")),
		PlaybackCount:    uintField(v, "playback_count"),
		FavoritingsCount: uintField(v, "favoritings_count"),
		CommentCount:     uintField(v, "comment_count"),
		RepostsCount:     uintField(v, "reposts_count"),
		LikesCount:       uintField(v, "likes_count"),
		ArtworkURL:       stringField(v, "artwork_url"),
		WaveformURL:      imageWaveform(stringField(v, "waveform_url")),
		Streamable:       boolField(v, "streamable"),
		Downloadable:     boolField(v, "downloadable"),
		PermalinkURL:     stringField(v, "permalink_url"),
		PurchaseURL:      stringField(v, "purchase_url"),
		StreamURL:        stringField(v, "stream_url"),
		DownloadURL:      stringField(v, "download_url"),
		VideoURL:         stringField(v, "video_url"),
		Genre:            stringField(v, "genre"),
		OriginalFormat:   stringField(v, "original_format"),
		URI:              stringField(v, "uri"),
		User:             NewUser(field(v, "user")),
	}
}

// imageWaveform turns the JSON waveform endpoint into the PNG rendering
// hosted next to it. Other URLs are returned unchanged.
func imageWaveform(url string) string {
	if !strings.HasSuffix(url, "json") {
		return url
	}
	url = strings.ReplaceAll(url, "json", "png")
	return strings.ReplaceAll(url, "is.", "1.")
}

func (t Track) GetID() uint        { return t.ID }
func (t Track) GetTitle() string   { return t.Title }
func (t Track) GetArtwork() string { return t.ArtworkURL }
func (t Track) Kind() Kind         { return KindTrack }

// DurationSeconds returns the track length rounded down to whole seconds.
func (t Track) DurationSeconds() uint {
	return t.Duration / 1000
}
