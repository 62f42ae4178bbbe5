package services

import (
	"errors"
	"log"
	"time"

	"club-engagement-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

const ticketType = "check_in"

// TicketClaims is the payload of a check-in ticket. The ticket itself
// is stateless; uniqueness is enforced at the attendance record, not
// here.
type TicketClaims struct {
	EventID   string `json:"event_id"`
	EventSlug string `json:"event_slug,omitempty"`
	EventName string `json:"event_name"`
	Type      string `json:"type"`
	jwt.RegisteredClaims
}

// TicketService mints and verifies short-lived, event-scoped check-in
// tickets. The signing secret and TTL are injected so tests can use
// fixture keys.
type TicketService struct {
	DB    *gorm.DB
	Roles *RoleService

	secret []byte
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

func NewTicketService(db *gorm.DB, roles *RoleService, secret []byte, ttl time.Duration) *TicketService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TicketService{
		DB:     db,
		Roles:  roles,
		secret: secret,
		ttl:    ttl,
		leeway: 5 * time.Second,
		now:    time.Now,
	}
}

// IssueTicket mints a signed ticket for an event whose check-in window
// is currently open. The expiry is the short TTL, clamped so it never
// outlives the window; the admin client is expected to re-poll while
// the QR view is open.
func (s *TicketService) IssueTicket(actorID, eventID string) (string, time.Time, *models.Event, error) {
	ok, err := s.Roles.HasActiveRole(actorID, models.RoleEventManager, models.RoleSuperAdmin)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if !ok {
		return "", time.Time{}, nil, ErrForbidden
	}

	var event models.Event
	if err := s.DB.Where("id = ? AND is_active = ?", eventID, true).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", time.Time{}, nil, ErrEventNotFound
		}
		return "", time.Time{}, nil, err
	}

	now := s.now()
	switch event.CheckInStateAt(now) {
	case models.CheckInNotOpen:
		return "", time.Time{}, nil, ErrCheckInNotOpen
	case models.CheckInClosed:
		return "", time.Time{}, nil, ErrCheckInClosed
	}

	token, exp, err := s.signTicket(&event, now)
	if err != nil {
		return "", time.Time{}, nil, err
	}

	log.Printf("[TICKETS] issued ticket for event %s (exp=%s) by %s", event.Slug, exp.Format(time.RFC3339), actorID)
	return token, exp, &event, nil
}

// signTicket builds and signs the claims; exp is now+TTL clamped to
// the event's check_in_closes.
func (s *TicketService) signTicket(event *models.Event, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl)
	if exp.After(event.CheckInCloses) {
		exp = event.CheckInCloses
	}

	claims := TicketClaims{
		EventID:   event.ID,
		EventSlug: event.Slug,
		EventName: event.Name,
		Type:      ticketType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// VerifyTicket checks signature, expiry (with a few seconds of clock
// skew leeway) and the claim type. Any signature or expiry failure is
// an InvalidToken; a well-signed token of the wrong type is
// InvalidTokenType.
func (s *TicketService) VerifyTicket(tokenString string) (*TicketClaims, error) {
	// Expiry is validated by hand below so leeway and the injected
	// clock both apply.
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}

	claims := &TicketClaims{}
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || s.now().After(claims.ExpiresAt.Time.Add(s.leeway)) {
		return nil, ErrInvalidToken
	}
	if claims.Type != ticketType {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// --- HTTP handler ---

// HandleIssueTicket serves POST /checkin/ticket.
func (s *TicketService) HandleIssueTicket(c *fiber.Ctx) error {
	actorID, _ := c.Locals("user_id").(string)
	if actorID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	var req struct {
		EventID string `json:"event_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.EventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event_id is required",
			"code":  "VALIDATION_ERROR",
		})
	}

	token, exp, event, err := s.IssueTicket(actorID, req.EventID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"ticket":     token,
		"expires_at": exp,
		"event": fiber.Map{
			"id":   event.ID,
			"slug": event.Slug,
			"name": event.Name,
		},
	})
}
