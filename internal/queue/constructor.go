package queue

import (
	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/service"
)

type Queue struct {
	batch  service.BatchService
	logger *zap.Logger
}

func NewQueue(batch service.BatchService, logger *zap.Logger) *Queue {
	return &Queue{
		batch:  batch,
		logger: logger,
	}
}

// TaskTypePublishDue fires a publish batch at the moment a scheduled post becomes due.
const TaskTypePublishDue = "post:publish_due"

type PublishDuePayload struct {
	PostID int64 `json:"post_id"`
}
