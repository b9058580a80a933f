package models

// Video is a YouTube search hit shown in the youtube category.
type Video struct {
	// ID is the YouTube video id.
	ID string `json:"id"`

	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Description string `json:"description"`

	// Thumbnail is the URL of the best thumbnail available.
	Thumbnail string `json:"thumbnail"`
}

// WatchURL returns the browser URL of the video.
func (v Video) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}
