package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/reelqueue/internal/service"
	"github.com/maheshrc27/reelqueue/internal/transfer"
)

type UploadHandler struct {
	s service.StorageService
}

func NewUploadHandler(service service.StorageService) *UploadHandler {
	return &UploadHandler{s: service}
}

func (h *UploadHandler) RequestUploadURL(c *fiber.Ctx) error {
	var req transfer.UploadURLRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	resp, err := h.s.RequestUploadURL(c.Context(), &req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}
