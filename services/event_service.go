package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"club-engagement-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// EventService is the event CRUD collaborator. It has no invariants of
// its own beyond field validation; its writes are gated by the role
// authority (event_manager or super_admin).
type EventService struct {
	DB       *gorm.DB
	Roles    *RoleService
	validate *validator.Validate
}

func NewEventService(db *gorm.DB, roles *RoleService) *EventService {
	return &EventService{DB: db, Roles: roles, validate: validator.New()}
}

type eventData struct {
	Name          string     `json:"name" validate:"omitempty,min=3,max=255"`
	Description   string     `json:"description"`
	Location      string     `json:"location" validate:"max=255"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	CheckInOpens  *time.Time `json:"check_in_opens"`
	CheckInCloses *time.Time `json:"check_in_closes"`
	IsActive      *bool      `json:"is_active"`
}

func (s *EventService) requireManager(actorID string) error {
	ok, err := s.Roles.HasActiveRole(actorID, models.RoleEventManager, models.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// uniqueSlug generates a URL slug from the event name, suffixing a
// counter on collision.
func (s *EventService) uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	candidate := base
	for i := 2; ; i++ {
		var count int64
		if err := tx.Model(&models.Event{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *EventService) createEvent(actorID string, data eventData) (*models.Event, error) {
	if data.Name == "" || data.StartTime == nil || data.EndTime == nil ||
		data.CheckInOpens == nil || data.CheckInCloses == nil {
		return nil, fmt.Errorf("%w: name, start_time, end_time, check_in_opens and check_in_closes are required", ErrValidation)
	}
	if !data.CheckInCloses.After(*data.CheckInOpens) {
		return nil, fmt.Errorf("%w: check_in_closes must be after check_in_opens", ErrValidation)
	}
	if !data.EndTime.After(*data.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrValidation)
	}

	var event models.Event
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		eventSlug, err := s.uniqueSlug(tx, data.Name)
		if err != nil {
			return err
		}
		event = models.Event{
			Slug:          eventSlug,
			Name:          data.Name,
			Description:   data.Description,
			Location:      data.Location,
			StartTime:     *data.StartTime,
			EndTime:       *data.EndTime,
			CheckInOpens:  *data.CheckInOpens,
			CheckInCloses: *data.CheckInCloses,
			IsActive:      true,
			CreatedBy:     actorID,
		}
		return tx.Create(&event).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[EVENTS] created %s (%s) by %s", event.Name, event.Slug, actorID)
	return &event, nil
}

func (s *EventService) updateEvent(eventID string, data eventData) (*models.Event, error) {
	var event models.Event
	if err := s.DB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	if data.Name != "" {
		event.Name = data.Name
	}
	if data.Description != "" {
		event.Description = data.Description
	}
	if data.Location != "" {
		event.Location = data.Location
	}
	if data.StartTime != nil {
		event.StartTime = *data.StartTime
	}
	if data.EndTime != nil {
		event.EndTime = *data.EndTime
	}
	if data.CheckInOpens != nil {
		event.CheckInOpens = *data.CheckInOpens
	}
	if data.CheckInCloses != nil {
		event.CheckInCloses = *data.CheckInCloses
	}
	if data.IsActive != nil {
		event.IsActive = *data.IsActive
	}

	if !event.CheckInCloses.After(event.CheckInOpens) {
		return nil, fmt.Errorf("%w: check_in_closes must be after check_in_opens", ErrValidation)
	}

	if err := s.DB.Save(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *EventService) deleteEvent(eventID string) error {
	var event models.Event
	if err := s.DB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	return s.DB.Delete(&event).Error
}

// --- HTTP handlers ---

// HandleAdminEvents serves POST /admin/events.
func (s *EventService) HandleAdminEvents(c *fiber.Ctx) error {
	actorID, _ := c.Locals("user_id").(string)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}
	if err := s.requireManager(actorID); err != nil {
		return respondError(c, err)
	}

	var req struct {
		Operation string    `json:"operation"`
		EventID   string    `json:"event_id"`
		Data      eventData `json:"data"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
			"code":  "VALIDATION_ERROR",
		})
	}
	if err := s.validate.Struct(&req.Data); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "VALIDATION_ERROR",
		})
	}

	switch req.Operation {
	case "create":
		event, err := s.createEvent(actorID, req.Data)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(event)

	case "update":
		if req.EventID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "event_id is required",
				"code":  "VALIDATION_ERROR",
			})
		}
		event, err := s.updateEvent(req.EventID, req.Data)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(event)

	case "delete":
		if req.EventID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "event_id is required",
				"code":  "VALIDATION_ERROR",
			})
		}
		if err := s.deleteEvent(req.EventID); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "event deleted"})
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "unknown operation",
		"code":  "VALIDATION_ERROR",
	})
}

// GetAllEvents serves GET /events.
func (s *EventService) GetAllEvents(c *fiber.Ctx) error {
	var events []models.Event
	query := s.DB.Order("start_time DESC")
	if c.Query("active", "true") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&events).Error; err != nil {
		log.Printf("[EVENTS] DB error listing events: %v", err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// GetEvent serves GET /events/:id (id or slug).
func (s *EventService) GetEvent(c *fiber.Ctx) error {
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
	return c.JSON(event)
}
