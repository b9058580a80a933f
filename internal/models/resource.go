// Package models contains the data structures used throughout the scope daemon.
package models

import "github.com/samber/lo"

// Kind identifies the variant of a SoundCloud resource.
type Kind int

const (
	KindUnknown Kind = iota
	KindTrack
	KindUser
	KindComment
)

// String returns the SoundCloud "kind" field value for k.
func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindUser:
		return "user"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Resource is the common view over tracks, users and comments.
type Resource interface {
	GetID() uint
	GetTitle() string
	GetArtwork() string
	Kind() Kind
}

// ParseTracks filters a decoded JSON array down to its "track" entries.
// Anything that is not an array yields an empty list.
func ParseTracks(root any) []Track {
	return parseTyped(root, KindTrack, NewTrack)
}

// ParseUsers filters a decoded JSON array down to its "user" entries.
func ParseUsers(root any) []User {
	return parseTyped(root, KindUser, NewUser)
}

// ParseComments filters a decoded JSON array down to its "comment" entries.
func ParseComments(root any) []Comment {
	return parseTyped(root, KindComment, NewComment)
}

func parseTyped[T any](root any, kind Kind, build func(any) T) []T {
	items, ok := root.([]any)
	if !ok {
		return []T{}
	}
	return lo.FilterMap(items, func(item any, _ int) (T, bool) {
		if stringField(item, "kind") != kind.String() {
			var zero T
			return zero, false
		}
		return build(item), true
	})
}
