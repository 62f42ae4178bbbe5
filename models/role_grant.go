package models

import (
	"time"
)

type RoleType string

const (
	RoleEventManager RoleType = "event_manager"
	RoleSuperAdmin   RoleType = "super_admin"
)

func (r RoleType) Valid() bool {
	return r == RoleEventManager || r == RoleSuperAdmin
}

// RoleGrant is a revocable capability assignment. Revocation is soft:
// RevokedAt is set and the row kept for audit. At most one row per
// (user_id, role_type) may have RevokedAt IS NULL — enforced by a
// partial unique index created outside AutoMigrate (see main.go).
type RoleGrant struct {
	ID        string   `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string   `gorm:"type:uuid;not null;index" json:"user_id"`
	RoleType  RoleType `gorm:"size:32;not null" json:"role_type"`
	GrantedBy string   `gorm:"type:uuid;not null" json:"granted_by"`
	Notes     string   `gorm:"type:text" json:"notes"`

	GrantedAt time.Time  `gorm:"autoCreateTime" json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	RevokedBy *string    `gorm:"type:uuid" json:"revoked_by,omitempty"`
}

func (g *RoleGrant) Active() bool {
	return g.RevokedAt == nil
}
