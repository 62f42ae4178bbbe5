package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Typed business outcomes. Handlers map these to 4xx responses with a
// stable code string; anything else becomes a 500.
var (
	ErrForbidden          = errors.New("forbidden")
	ErrRoleAlreadyExists  = errors.New("role already exists")
	ErrRoleNotFound       = errors.New("role not found")
	ErrEventNotFound      = errors.New("event not found")
	ErrCheckInNotOpen     = errors.New("check-in not open yet")
	ErrCheckInClosed      = errors.New("check-in closed")
	ErrInvalidToken       = errors.New("invalid or expired ticket")
	ErrInvalidTokenType   = errors.New("invalid ticket type")
	ErrAlreadyCheckedIn   = errors.New("already checked in")
	ErrInvalidActionType  = errors.New("invalid action type")
	ErrAlreadyRewarded    = errors.New("already rewarded")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrValidation         = errors.New("validation error")
)

type errorMapping struct {
	status int
	code   string
}

var errorMappings = map[error]errorMapping{
	ErrForbidden:          {fiber.StatusForbidden, "FORBIDDEN"},
	ErrRoleAlreadyExists:  {fiber.StatusConflict, "ROLE_ALREADY_EXISTS"},
	ErrRoleNotFound:       {fiber.StatusNotFound, "ROLE_NOT_FOUND"},
	ErrEventNotFound:      {fiber.StatusNotFound, "EVENT_NOT_FOUND"},
	ErrCheckInNotOpen:     {fiber.StatusConflict, "CHECK_IN_NOT_OPEN"},
	ErrCheckInClosed:      {fiber.StatusConflict, "CHECK_IN_CLOSED"},
	ErrInvalidToken:       {fiber.StatusUnauthorized, "INVALID_TOKEN"},
	ErrInvalidTokenType:   {fiber.StatusUnauthorized, "INVALID_TOKEN_TYPE"},
	ErrAlreadyCheckedIn:   {fiber.StatusConflict, "ALREADY_CHECKED_IN"},
	ErrInvalidActionType:  {fiber.StatusBadRequest, "INVALID_ACTION_TYPE"},
	ErrAlreadyRewarded:    {fiber.StatusConflict, "ALREADY_REWARDED"},
	ErrPreconditionFailed: {fiber.StatusConflict, "PRECONDITION_FAILED"},
	ErrInvalidCoordinates: {fiber.StatusBadRequest, "INVALID_COORDINATES"},
	ErrValidation:         {fiber.StatusBadRequest, "VALIDATION_ERROR"},
}

// respondError writes the typed outcome for a business error, or a
// generic 500 for anything unexpected. Business rejections are final;
// clients must not retry them.
func respondError(c *fiber.Ctx, err error) error {
	for sentinel, m := range errorMappings {
		if errors.Is(err, sentinel) {
			return c.Status(m.status).JSON(fiber.Map{
				"error": err.Error(),
				"code":  m.code,
			})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal server error",
		"code":  "INTERNAL_ERROR",
	})
}
