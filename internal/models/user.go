package models

// User is a SoundCloud account. The username doubles as its title.
type User struct {
	ID              uint   `json:"id"`
	Username        string `json:"username"`
	AvatarURL       string `json:"avatar_url"`
	PermalinkURL    string `json:"permalink_url"`
	TrackCount      uint   `json:"track_count"`
	FollowersCount  uint   `json:"followers_count"`
	FollowingsCount uint   `json:"followings_count"`
	Description     string `json:"description"`
}

// NewUser builds a User from a decoded JSON object.
func NewUser(v any) User {
	return User{
		ID:              uintField(v, "id"),
		Username:        stringField(v, "username"),
		AvatarURL:       stringField(v, "avatar_url"),
		PermalinkURL:    stringField(v, "permalink_url"),
		TrackCount:      uintField(v, "track_count"),
		FollowersCount:  uintField(v, "followers_count"),
		FollowingsCount: uintField(v, "followings_count"),
		Description:     stringField(v, "description"),
	}
}

func (u User) GetID() uint        { return u.ID }
func (u User) GetTitle() string   { return u.Username }
func (u User) GetArtwork() string { return u.AvatarURL }
func (u User) Kind() Kind         { return KindUser }
