package models

import (
	"time"
)

// Attendance is the per-(event, user) record. A row is created with a
// null CheckedInAt on RSVP, or created directly at check-in time.
// CheckedInAt transitions null → timestamp exactly once; the unique
// (event_id, user_id) index plus a conditional UPDATE make concurrent
// check-in attempts resolve to a single winner.
type Attendance struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EventID string `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_event_user" json:"event_id"`
	UserID  string `gorm:"type:uuid;not null;uniqueIndex:idx_attendance_event_user" json:"user_id"`

	CheckedInAt *time.Time `json:"checked_in_at,omitempty"`
	CheckInLat  *float64   `json:"check_in_lat,omitempty"`
	CheckInLon  *float64   `json:"check_in_lon,omitempty"`

	Event Event `gorm:"foreignKey:EventID" json:"-"`

	Timestamps
}

func (a *Attendance) CheckedIn() bool {
	return a.CheckedInAt != nil
}
