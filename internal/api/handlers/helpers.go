package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/reelqueue/internal/service"
)

const sessionIDLocal = "session_id"

func GetSessionID(c *fiber.Ctx) string {
	sessionID, _ := c.Locals(sessionIDLocal).(string)
	return sessionID
}

// errorResponse maps service errors onto HTTP statuses. Unexpected errors are
// returned to the app error handler.
func errorResponse(c *fiber.Ctx, err error) error {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": vErr.Error(),
			"field": vErr.Field,
		})
	case errors.Is(err, service.ErrAccountForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account access denied",
		})
	case errors.Is(err, service.ErrUnauthorizedTrigger):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}
	return err
}
