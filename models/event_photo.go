package models

// EventPhoto records a member-uploaded photo stored in R2.
type EventPhoto struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	EventID   string    `gorm:"type:uuid;not null;index" json:"event_id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	PhotoURL  string    `gorm:"type:text;not null" json:"photo_url"`
	PhotoType PhotoType `gorm:"size:32" json:"photo_type,omitempty"`

	Timestamps
}
