package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"club-engagement-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsConfig holds the base point table and the photo multiplier
// table. Injected into the service so fixtures can override it.
type PointsConfig struct {
	Base        map[models.ActionType]int
	Multipliers map[models.PhotoType]int
}

func DefaultPointsConfig() PointsConfig {
	return PointsConfig{
		Base: map[models.ActionType]int{
			models.ActionAttendance:  10,
			models.ActionFeedback:    5,
			models.ActionPhotoUpload: 5,
		},
		Multipliers: map[models.PhotoType]int{
			models.PhotoAlumni:        2,
			models.PhotoProfessional:  3,
			models.PhotoMemberOfMonth: 4,
		},
	}
}

// PointsConfigFromEnv starts from the defaults and applies
// POINTS_ATTENDANCE / POINTS_FEEDBACK / POINTS_PHOTO_UPLOAD overrides.
func PointsConfigFromEnv() PointsConfig {
	cfg := DefaultPointsConfig()
	overrides := map[string]models.ActionType{
		"POINTS_ATTENDANCE":   models.ActionAttendance,
		"POINTS_FEEDBACK":     models.ActionFeedback,
		"POINTS_PHOTO_UPLOAD": models.ActionPhotoUpload,
	}
	for env, action := range overrides {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				cfg.Base[action] = n
			}
		}
	}
	return cfg
}

// PointsService is the ledger: it computes and atomically awards
// points for qualifying actions exactly once each. The unique
// (user_id, event_id, reason) index on points_transactions is the
// duplicate guard; the balance row moves in the same DB transaction.
type PointsService struct {
	DB     *gorm.DB
	Config PointsConfig
}

func NewPointsService(db *gorm.DB, cfg PointsConfig) *PointsService {
	return &PointsService{DB: db, Config: cfg}
}

// Amount resolves base points and metadata-dependent multiplier for an
// action. Unknown action types are rejected; unknown photo types fall
// back to x1.
func (s *PointsService) Amount(action models.ActionType, metadata map[string]string) (int, error) {
	base, ok := s.Config.Base[action]
	if !ok {
		return 0, ErrInvalidActionType
	}
	multiplier := 1
	if action == models.ActionPhotoUpload {
		if pt, ok := metadata["photoType"]; ok {
			if m, ok := s.Config.Multipliers[models.PhotoType(pt)]; ok {
				multiplier = m
			}
		}
	}
	return base * multiplier, nil
}

// Reason derives the ledger reason string, the third component of the
// duplicate-guard key. Photo uploads encode the photo type so each
// category can be rewarded once per event.
func Reason(action models.ActionType, metadata map[string]string) string {
	if action == models.ActionPhotoUpload {
		if pt := metadata["photoType"]; pt != "" {
			return fmt.Sprintf("%s:%s", action, pt)
		}
	}
	return string(action)
}

// Award inserts a transaction and increments the user's balance in one
// atomic unit. Returns the transaction and the new balance.
func (s *PointsService) Award(userID string, action models.ActionType, eventID *string, metadata map[string]string) (*models.PointsTransaction, int, error) {
	amount, err := s.Amount(action, metadata)
	if err != nil {
		return nil, 0, err
	}

	if action == models.ActionAttendance && (eventID == nil || *eventID == "") {
		return nil, 0, fmt.Errorf("%w: attendance awards require an event", ErrValidation)
	}

	if err := s.checkPrecondition(userID, action, eventID, metadata); err != nil {
		return nil, 0, err
	}

	reason := Reason(action, metadata)
	var txn models.PointsTransaction
	var balance models.UserPointsBalance

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// First line of defense: explicit existence check.
		var count int64
		query := tx.Model(&models.PointsTransaction{}).
			Where("user_id = ? AND reason = ?", userID, reason)
		if eventID != nil {
			query = query.Where("event_id = ?", *eventID)
		} else {
			query = query.Where("event_id IS NULL")
		}
		if err := query.Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyRewarded
		}

		txn = models.PointsTransaction{
			UserID:     userID,
			EventID:    eventID,
			Reason:     reason,
			Amount:     amount,
			ActionType: action,
		}
		if err := tx.Create(&txn).Error; err != nil {
			// Second line of defense: the unique index resolves the
			// race between the check and the insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyRewarded
			}
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"points": gorm.Expr("user_points_balances.points + ?", amount),
			}),
		}).Create(&models.UserPointsBalance{UserID: userID, Points: amount}).Error; err != nil {
			return err
		}

		return tx.Where("user_id = ?", userID).First(&balance).Error
	})
	if err != nil {
		return nil, 0, err
	}

	log.Printf("[POINTS] awarded %d to %s (reason: %s)", amount, userID, reason)
	return &txn, balance.Points, nil
}

// checkPrecondition enforces action-specific qualifying state. A photo
// award with a recognized photo type requires the user to already be
// checked in at the event.
func (s *PointsService) checkPrecondition(userID string, action models.ActionType, eventID *string, metadata map[string]string) error {
	if action != models.ActionPhotoUpload {
		return nil
	}
	pt := models.PhotoType(metadata["photoType"])
	if _, recognized := s.Config.Multipliers[pt]; !recognized {
		return nil
	}
	if eventID == nil || *eventID == "" {
		return fmt.Errorf("%w: photo awards with a photo type require an event", ErrPreconditionFailed)
	}

	var count int64
	err := s.DB.Model(&models.Attendance{}).
		Where("event_id = ? AND user_id = ? AND checked_in_at IS NOT NULL", *eventID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: user has not checked in to this event", ErrPreconditionFailed)
	}
	return nil
}

// --- HTTP handlers ---

// HandleAward serves POST /points/award.
func (s *PointsService) HandleAward(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing user context",
			"code":  "UNAUTHORIZED",
		})
	}

	var req struct {
		ActionType string            `json:"action_type"`
		EventID    *string           `json:"event_id"`
		Metadata   map[string]string `json:"metadata"`
	}
	if err := c.BodyParser(&req); err != nil || req.ActionType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action_type is required",
			"code":  "VALIDATION_ERROR",
		})
	}

	txn, balance, err := s.Award(userID, models.ActionType(req.ActionType), req.EventID, req.Metadata)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"transaction": txn,
		"balance":     balance,
	})
}

// GetBalance serves GET /points/balance.
func (s *PointsService) GetBalance(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	var balance models.UserPointsBalance
	if err := s.DB.Where("user_id = ?", userID).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(fiber.Map{"user_id": userID, "points": 0})
		}
		log.Printf("[POINTS] DB error fetching balance: %v", err)
		return respondError(c, err)
	}
	return c.JSON(balance)
}

// GetHistory serves GET /points/history.
func (s *PointsService) GetHistory(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var txns []models.PointsTransaction
	if err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		log.Printf("[POINTS] DB error fetching history: %v", err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

// GetLeaderboard serves GET /points/leaderboard.
func (s *PointsService) GetLeaderboard(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "25"))
	if limit < 1 || limit > 100 {
		limit = 25
	}

	type entry struct {
		UserID      string `json:"user_id"`
		Points      int    `json:"points"`
		Username    string `json:"username,omitempty"`
		DisplayName string `json:"display_name,omitempty"`
	}
	var entries []entry
	if err := s.DB.Raw(`
		SELECT b.user_id, b.points, m.username, m.display_name
		FROM user_points_balances b
		LEFT JOIN members m ON m.external_user_id = b.user_id AND m.deleted_at IS NULL
		ORDER BY b.points DESC
		LIMIT ?
	`, limit).Scan(&entries).Error; err != nil {
		log.Printf("[POINTS] DB error fetching leaderboard: %v", err)
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"leaderboard": entries})
}
