package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/queue"
	"github.com/maheshrc27/reelqueue/internal/service"
	"github.com/maheshrc27/reelqueue/internal/transfer"
)

type PostHandler struct {
	s           service.PostService
	AsynqClient *asynq.Client
	logger      *zap.Logger
}

// NewPostHandler takes an optional asynq client; without one, due posts are
// only picked up by the periodic batch.
func NewPostHandler(service service.PostService, asynqClient *asynq.Client, logger *zap.Logger) *PostHandler {
	return &PostHandler{s: service, AsynqClient: asynqClient, logger: logger}
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	postID, delay, err := h.s.Schedule(c.Context(), GetSessionID(c), &pc)
	if err != nil {
		return errorResponse(c, err)
	}

	if h.AsynqClient != nil {
		err = queue.EnqueuePublishDue(h.AsynqClient, queue.PublishDuePayload{PostID: postID}, delay, h.logger)
		if err != nil {
			// The periodic batch still picks the post up.
			h.logger.Warn("Failed to enqueue publish task", zap.Int64("post_id", postID), zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"id":      postID,
		"message": "Post scheduled successfully",
	})
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context(), GetSessionID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}
