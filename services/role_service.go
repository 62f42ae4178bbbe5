package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"club-engagement-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// RoleService is the capability gate for privileged operations: it
// grants, revokes and lists role assignments, and answers whether an
// actor currently holds a role. Only active super_admins may mutate
// grants.
type RoleService struct {
	DB       *gorm.DB
	validate *validator.Validate
}

func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{DB: db, validate: validator.New()}
}

// HasActiveRole reports whether userID holds an active grant of any of
// the given role types.
func (s *RoleService) HasActiveRole(userID string, roles ...models.RoleType) (bool, error) {
	if userID == "" || len(roles) == 0 {
		return false, nil
	}
	var count int64
	err := s.DB.Model(&models.RoleGrant{}).
		Where("user_id = ? AND role_type IN ? AND revoked_at IS NULL", userID, roles).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// requireSuperAdmin gates grant/revoke/list mutations.
func (s *RoleService) requireSuperAdmin(actorID string) error {
	ok, err := s.HasActiveRole(actorID, models.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// Grant assigns a role to target. Fails if target already holds an
// active grant of that type.
func (s *RoleService) Grant(actorID, targetID string, role models.RoleType, notes string) (*models.RoleGrant, error) {
	if err := s.requireSuperAdmin(actorID); err != nil {
		return nil, err
	}

	var grant *models.RoleGrant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var existing models.RoleGrant
		err := tx.Where("user_id = ? AND role_type = ? AND revoked_at IS NULL", targetID, role).
			First(&existing).Error
		if err == nil {
			return ErrRoleAlreadyExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		grant = &models.RoleGrant{
			UserID:    targetID,
			RoleType:  role,
			GrantedBy: actorID,
			Notes:     notes,
		}
		if err := tx.Create(grant).Error; err != nil {
			// Partial unique index on active grants catches the race
			// between the existence check and the insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoleAlreadyExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ROLES] granted %s to %s by %s", role, targetID, actorID)
	return grant, nil
}

// Revoke soft-deletes an active grant: RevokedAt is set and notes are
// appended, the row is never deleted. Actors cannot revoke their own
// grants.
func (s *RoleService) Revoke(actorID, targetID string, role models.RoleType, notes string) (*models.RoleGrant, error) {
	if err := s.requireSuperAdmin(actorID); err != nil {
		return nil, err
	}
	if actorID == targetID {
		return nil, fmt.Errorf("%w: cannot revoke own role", ErrForbidden)
	}

	var grant models.RoleGrant
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ? AND role_type = ? AND revoked_at IS NULL", targetID, role).
			First(&grant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoleNotFound
		}
		if err != nil {
			return err
		}

		now := time.Now()
		grant.RevokedAt = &now
		grant.RevokedBy = &actorID
		if notes != "" {
			if grant.Notes != "" {
				grant.Notes = grant.Notes + "\n" + notes
			} else {
				grant.Notes = notes
			}
		}
		return tx.Save(&grant).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ROLES] revoked %s from %s by %s", role, targetID, actorID)
	return &grant, nil
}

// List returns grants, optionally including revoked ones for audit.
func (s *RoleService) List(actorID string, includeRevoked bool) ([]models.RoleGrant, error) {
	if err := s.requireSuperAdmin(actorID); err != nil {
		return nil, err
	}
	query := s.DB.Order("granted_at DESC")
	if !includeRevoked {
		query = query.Where("revoked_at IS NULL")
	}
	var grants []models.RoleGrant
	if err := query.Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// BootstrapSuperAdmins seeds initial super_admin grants from a
// comma-separated list of user IDs. Idempotent; used at boot so the
// first admin does not need an existing admin to grant them.
func (s *RoleService) BootstrapSuperAdmins(csv string) error {
	for _, id := range strings.Split(csv, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		var count int64
		if err := s.DB.Model(&models.RoleGrant{}).
			Where("user_id = ? AND role_type = ? AND revoked_at IS NULL", id, models.RoleSuperAdmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		grant := models.RoleGrant{
			UserID:    id,
			RoleType:  models.RoleSuperAdmin,
			GrantedBy: id,
			Notes:     "bootstrap",
		}
		if err := s.DB.Create(&grant).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		log.Printf("[ROLES] bootstrapped super_admin %s", id)
	}
	return nil
}

// --- HTTP handler ---

type roleRequest struct {
	Action         string `json:"action" validate:"required,oneof=grant revoke list"`
	UserID         string `json:"user_id" validate:"omitempty,uuid"`
	RoleType       string `json:"role_type" validate:"omitempty,oneof=event_manager super_admin"`
	Notes          string `json:"notes" validate:"max=1024"`
	IncludeRevoked bool   `json:"include_revoked"`
}

// HandleRoles serves POST /admin/roles.
func (s *RoleService) HandleRoles(c *fiber.Ctx) error {
	actorID, _ := c.Locals("user_id").(string)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
			"code":  "VALIDATION_ERROR",
		})
	}
	if err := s.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "VALIDATION_ERROR",
		})
	}

	switch req.Action {
	case "list":
		grants, err := s.List(actorID, req.IncludeRevoked)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"roles": grants})

	case "grant", "revoke":
		if req.UserID == "" || req.RoleType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "user_id and role_type are required",
				"code":  "VALIDATION_ERROR",
			})
		}
		role := models.RoleType(req.RoleType)
		var grant *models.RoleGrant
		var err error
		if req.Action == "grant" {
			grant, err = s.Grant(actorID, req.UserID, role, req.Notes)
		} else {
			grant, err = s.Revoke(actorID, req.UserID, role, req.Notes)
		}
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "OK", "role": grant})
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "unknown action",
		"code":  "VALIDATION_ERROR",
	})
}
