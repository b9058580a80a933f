package models

import (
	"time"
)

// Recorded stamps append-only records such as activities. They are never
// updated, so there is no update time.
type Recorded struct {
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Stamp sets CreatedAt to t unless it is already set. The time is kept in UTC
// at millisecond precision, which is what MongoDB stores.
func (r *Recorded) Stamp(t time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.UTC().Truncate(time.Millisecond)
	}
}
