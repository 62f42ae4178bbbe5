package models

import (
	"time"

	"gorm.io/gorm"
)

// Member is a local snapshot of member profile data needed for rosters
// and leaderboards. Owned solely by this service; populated by the
// member sync worker from the identity service.
type Member struct {
	ID                string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username          string  `gorm:"index;not null" json:"username"`
	Email             string  `json:"email,omitempty"`
	DisplayName       string  `json:"display_name,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`
	Major             *string `json:"major,omitempty"`
	GraduationYear    *int    `json:"graduation_year,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
