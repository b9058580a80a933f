package models

// Comment is a timed comment left on a track.
type Comment struct {
	ID        uint   `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	User      User   `json:"user"`
}

// NewComment builds a Comment from a decoded JSON object.
func NewComment(v any) Comment {
	return Comment{
		ID:        uintField(v, "id"),
		Body:      stringField(v, "body"),
		CreatedAt: dateOnly(stringField(v, "created_at")),
		User:      NewUser(field(v, "user")),
	}
}

func (c Comment) GetID() uint { return c.ID }

// GetTitle returns the comment body.
func (c Comment) GetTitle() string { return c.Body }

// GetArtwork returns the author's avatar.
func (c Comment) GetArtwork() string { return c.User.AvatarURL }

func (c Comment) Kind() Kind { return KindComment }
