package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Social actions a result can be activated with.
const (
	ActionCommented  = "commented"
	ActionLike       = "like"
	ActionDeleteLike = "deletelike"
	ActionFollow     = "follow"
	ActionUnfollow   = "unfollow"
)

// Activity is a record of a social action performed through the scope.
type Activity struct {
	// ID is the unique identifier for the activity record.
	ID bson.ObjectID `json:"id" bson:"_id,omitempty"`

	// RequestID correlates the record with the log lines of the activation.
	RequestID string `json:"requestId" bson:"requestId"`

	// Action is the activated action id.
	Action string `json:"action" bson:"action" validate:"required,oneof=commented like deletelike follow unfollow"`

	// TrackID is the SoundCloud id of the track the result was built from.
	TrackID uint `json:"trackId" bson:"trackId"`

	// UserID is the SoundCloud id of the track owner.
	UserID uint `json:"userId" bson:"userId"`

	// Subject identifies the host-shell session that performed the action.
	Subject string `json:"subject,omitempty" bson:"subject,omitempty"`

	// Comment is the posted body for "commented" actions.
	Comment string `json:"comment,omitempty" bson:"comment,omitempty"`

	// Success reports whether SoundCloud accepted the action.
	Success bool `json:"success" bson:"success"`

	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty" bson:"error,omitempty"`

	// Duration is how long the upstream call took.
	Duration time.Duration `json:"duration" bson:"duration"`

	Recorded `bson:",inline"`
}

// NewActivity creates an activity stamped with the current time.
func NewActivity(requestID, action string, trackID, userID uint) *Activity {
	activity := &Activity{
		ID:        bson.NewObjectID(),
		RequestID: requestID,
		Action:    action,
		TrackID:   trackID,
		UserID:    userID,
	}
	activity.Stamp(time.Now())
	return activity
}

// ActivitySummary aggregates activities per action.
type ActivitySummary struct {
	Action   string    `json:"action" bson:"_id"`
	Count    int64     `json:"count" bson:"count"`
	Failures int64     `json:"failures" bson:"failures"`
	LastAt   time.Time `json:"lastAt" bson:"lastAt"`
}
