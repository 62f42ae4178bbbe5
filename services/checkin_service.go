package services

import (
	"errors"
	"log"
	"time"

	"club-engagement-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CheckInService verifies presented tickets and records attendance.
// The checked_in_at transition is guarded by a conditional UPDATE under
// the unique (event_id, user_id) index, so two concurrent scans for
// the same user resolve to exactly one winner.
type CheckInService struct {
	DB      *gorm.DB
	Tickets *TicketService
	Points  *PointsService

	now func() time.Time
}

func NewCheckInService(db *gorm.DB, tickets *TicketService, points *PointsService) *CheckInService {
	return &CheckInService{DB: db, Tickets: tickets, Points: points, now: time.Now}
}

// ResolveEvent looks an active event up by internal id or external
// slug. Older tickets carried the slug in event_id, so both paths must
// resolve uniformly.
// TODO: drop the slug fallback once all clients mint id-based tickets.
func (s *CheckInService) ResolveEvent(identifier string) (*models.Event, error) {
	var event models.Event
	err := s.DB.Where("id = ? AND is_active = ?", identifier, true).First(&event).Error
	if err == nil {
		return &event, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		// A malformed uuid makes Postgres reject the id comparison;
		// fall through to the slug lookup in that case too.
		log.Printf("[CHECKIN] id lookup failed for %q, trying slug: %v", identifier, err)
	}

	err = s.DB.Where("slug = ? AND is_active = ?", identifier, true).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ValidateCoordinates range-checks optional coordinates. They are
// stored for reporting, never used to reject a check-in.
func ValidateCoordinates(lat, lon *float64) error {
	if lat != nil && (*lat < -90 || *lat > 90) {
		return ErrInvalidCoordinates
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return ErrInvalidCoordinates
	}
	return nil
}

// CheckIn validates the ticket and transitions the attendance record's
// checked_in_at from null to now, exactly once per (event, user).
func (s *CheckInService) CheckIn(userID, ticketString string, lat, lon *float64) (*models.Attendance, *models.Event, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return nil, nil, err
	}

	claims, err := s.Tickets.VerifyTicket(ticketString)
	if err != nil {
		return nil, nil, err
	}

	identifier := claims.EventID
	if identifier == "" {
		identifier = claims.EventSlug
	}
	event, err := s.ResolveEvent(identifier)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	var record models.Attendance

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Ensure the row exists; members who RSVPed already have one
		// with a null checked_in_at.
		seed := models.Attendance{EventID: event.ID, UserID: userID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		// The null-guarded UPDATE is the exactly-once transition:
		// concurrent requests race on it and only one affects a row.
		res := tx.Model(&models.Attendance{}).
			Where("event_id = ? AND user_id = ? AND checked_in_at IS NULL", event.ID, userID).
			Updates(map[string]interface{}{
				"checked_in_at": now,
				"check_in_lat":  lat,
				"check_in_lon":  lon,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCheckedIn
		}

		return tx.Where("event_id = ? AND user_id = ?", event.ID, userID).First(&record).Error
	})
	if err != nil {
		return nil, nil, err
	}

	log.Printf("[CHECKIN] %s checked in to %s", userID, event.Slug)
	return &record, event, nil
}

// RSVP creates the attendance record with a null checked_in_at.
// Idempotent: repeat calls return the existing record.
func (s *CheckInService) RSVP(userID, eventIdentifier string) (*models.Attendance, *models.Event, error) {
	event, err := s.ResolveEvent(eventIdentifier)
	if err != nil {
		return nil, nil, err
	}

	record := models.Attendance{EventID: event.ID, UserID: userID}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&record).Error; err != nil {
		return nil, nil, err
	}
	if err := s.DB.Where("event_id = ? AND user_id = ?", event.ID, userID).First(&record).Error; err != nil {
		return nil, nil, err
	}
	return &record, event, nil
}

// --- HTTP handlers ---

// HandleVerify serves POST /checkin/verify.
func (s *CheckInService) HandleVerify(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	var req struct {
		Ticket string   `json:"ticket"`
		Lat    *float64 `json:"lat"`
		Lon    *float64 `json:"lon"`
	}
	if err := c.BodyParser(&req); err != nil || req.Ticket == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "ticket is required",
			"code":  "VALIDATION_ERROR",
		})
	}

	record, event, err := s.CheckIn(userID, req.Ticket, req.Lat, req.Lon)
	if err != nil {
		return respondError(c, err)
	}

	// Attendance points are awarded server-side off the successful
	// transition. An award failure never rolls the check-in back.
	response := fiber.Map{
		"attendance": record,
		"event": fiber.Map{
			"id":   event.ID,
			"slug": event.Slug,
			"name": event.Name,
		},
	}
	eventID := event.ID
	if txn, balance, err := s.Points.Award(userID, models.ActionAttendance, &eventID, nil); err != nil {
		if !errors.Is(err, ErrAlreadyRewarded) {
			log.Printf("[CHECKIN] attendance award failed for %s: %v", userID, err)
		}
		response["points_awarded"] = 0
	} else {
		response["points_awarded"] = txn.Amount
		response["balance"] = balance
	}

	return c.JSON(response)
}

// HandleRSVP serves POST /events/:id/rsvp.
func (s *CheckInService) HandleRSVP(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	record, event, err := s.RSVP(userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"attendance": record,
		"event": fiber.Map{
			"id":   event.ID,
			"slug": event.Slug,
			"name": event.Name,
		},
	})
}
