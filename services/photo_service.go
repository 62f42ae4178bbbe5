package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"club-engagement-system/models"
	"club-engagement-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhotoService stores member-uploaded event photos in R2 and feeds the
// points ledger with the resulting photo_upload action.
type PhotoService struct {
	DB     *gorm.DB
	Points *PointsService
	Roles  *RoleService
}

func NewPhotoService(db *gorm.DB, points *PointsService, roles *RoleService) *PhotoService {
	return &PhotoService{DB: db, Points: points, Roles: roles}
}

// HandleUpload serves POST /events/:id/photos (multipart).
func (s *PhotoService) HandleUpload(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	identifier := c.Params("id")
	var event models.Event
	err := s.DB.Where("id = ? AND is_active = ?", identifier, true).First(&event).Error
	if err != nil {
		err = s.DB.Where("slug = ? AND is_active = ?", identifier, true).First(&event).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrEventNotFound)
		}
		return respondError(c, err)
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "photo file is required",
			"code":  "VALIDATION_ERROR",
		})
	}

	photoType := models.PhotoType(c.FormValue("photo_type"))

	key := fmt.Sprintf("event-photos/%s/%s%s", event.Slug, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	url, err := utils.UploadFileToR2(fileHeader, key)
	if err != nil {
		log.Printf("[PHOTOS] R2 upload failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to store photo",
			"code":  "INTERNAL_ERROR",
		})
	}

	photo := models.EventPhoto{
		EventID:   event.ID,
		UserID:    userID,
		PhotoURL:  url,
		PhotoType: photoType,
	}
	if err := s.DB.Create(&photo).Error; err != nil {
		log.Printf("[PHOTOS] DB error saving photo: %v", err)
		return respondError(c, err)
	}

	// The award can legitimately fail (duplicate, precondition); the
	// photo stays stored either way.
	response := fiber.Map{"photo": photo}
	eventID := event.ID
	metadata := map[string]string{}
	if photoType != "" {
		metadata["photoType"] = string(photoType)
	}
	txn, balance, err := s.Points.Award(userID, models.ActionPhotoUpload, &eventID, metadata)
	if err != nil {
		log.Printf("[PHOTOS] photo_upload award skipped for %s: %v", userID, err)
		response["points_awarded"] = 0
	} else {
		response["points_awarded"] = txn.Amount
		response["balance"] = balance
	}

	return c.Status(fiber.StatusCreated).JSON(response)
}

// GetEventPhotos serves GET /events/:id/photos.
func (s *PhotoService) GetEventPhotos(c *fiber.Ctx) error {
	identifier := c.Params("id")
	var event models.Event
	err := s.DB.Where("id = ?", identifier).First(&event).Error
	if err != nil {
		err = s.DB.Where("slug = ?", identifier).First(&event).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrEventNotFound)
		}
		return respondError(c, err)
	}

	var photos []models.EventPhoto
	if err := s.DB.Where("event_id = ?", event.ID).
		Order("created_at DESC").
		Find(&photos).Error; err != nil {
		log.Printf("[PHOTOS] DB error listing photos: %v", err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"photos": photos})
}

// HandleDelete serves DELETE /admin/photos/:id. The owning points
// transaction is left untouched; the ledger is immutable.
func (s *PhotoService) HandleDelete(c *fiber.Ctx) error {
	actorID, _ := c.Locals("user_id").(string)
	ok, err := s.Roles.HasActiveRole(actorID, models.RoleEventManager, models.RoleSuperAdmin)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return respondError(c, ErrForbidden)
	}

	var photo models.EventPhoto
	if err := s.DB.Where("id = ?", c.Params("id")).First(&photo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "photo not found",
				"code":  "NOT_FOUND",
			})
		}
		return respondError(c, err)
	}

	if key, ok := utils.R2KeyFromURL(photo.PhotoURL); ok {
		if err := utils.DeleteFileFromR2(key); err != nil {
			log.Printf("[PHOTOS] R2 delete failed for %s: %v", photo.ID, err)
		}
	}
	if err := s.DB.Delete(&photo).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "photo deleted"})
}
