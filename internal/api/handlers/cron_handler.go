package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/reelqueue/internal/service"
)

type CronHandler struct {
	s service.BatchService
}

func NewCronHandler(service service.BatchService) *CronHandler {
	return &CronHandler{s: service}
}

func (h *CronHandler) RunBatch(c *fiber.Ctx) error {
	summary, err := h.s.Trigger(c.Context(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}
