package models

import (
	"time"

	"gorm.io/gorm"
)

// CheckInState is computed from the event's window, never stored.
type CheckInState string

const (
	CheckInNotOpen CheckInState = "not_open"
	CheckInActive  CheckInState = "active"
	CheckInClosed  CheckInState = "closed"
)

// Event is a club event members can RSVP to and check in at.
type Event struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Location    string `gorm:"size:255" json:"location"`

	StartTime time.Time `gorm:"not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`

	// Check-in window; tickets mint only while now ∈ [opens, closes).
	CheckInOpens  time.Time `gorm:"not null" json:"check_in_opens"`
	CheckInCloses time.Time `gorm:"not null" json:"check_in_closes"`

	IsActive  bool   `gorm:"default:true;index" json:"is_active"`
	CreatedBy string `gorm:"type:uuid;index" json:"created_by"`

	Timestamps
}

// CheckInStateAt recomputes the window state for a given instant.
func (e *Event) CheckInStateAt(now time.Time) CheckInState {
	switch {
	case now.Before(e.CheckInOpens):
		return CheckInNotOpen
	case now.Before(e.CheckInCloses):
		return CheckInActive
	default:
		return CheckInClosed
	}
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
