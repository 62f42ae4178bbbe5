package models

// ActionType identifies a qualifying action the ledger awards points for.
type ActionType string

const (
	ActionAttendance  ActionType = "attendance"
	ActionFeedback    ActionType = "feedback"
	ActionPhotoUpload ActionType = "photo_upload"
)

// PhotoType multiplies the photo_upload base points.
type PhotoType string

const (
	PhotoAlumni        PhotoType = "alumni"
	PhotoProfessional  PhotoType = "professional"
	PhotoMemberOfMonth PhotoType = "member_of_month"
)

// PointsTransaction is an immutable ledger entry. The unique
// (user_id, event_id, reason) index is the duplicate-award guard.
type PointsTransaction struct {
	ID      string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID  string  `gorm:"type:uuid;not null;uniqueIndex:idx_points_user_event_reason" json:"user_id"`
	EventID *string `gorm:"type:uuid;uniqueIndex:idx_points_user_event_reason" json:"event_id,omitempty"`
	Reason  string  `gorm:"size:128;not null;uniqueIndex:idx_points_user_event_reason" json:"reason"`

	Amount     int        `gorm:"not null" json:"amount"`
	ActionType ActionType `gorm:"size:32;not null" json:"action_type"`

	Timestamps
}

// UserPointsBalance is the maintained sum of a user's transactions,
// moved in the same DB transaction as every ledger insert.
type UserPointsBalance struct {
	UserID string `gorm:"primaryKey;type:uuid" json:"user_id"`
	Points int    `gorm:"default:0" json:"points"`

	Timestamps
}
