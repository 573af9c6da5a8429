package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const publishDueMaxRetry = 3

func newPublishDueTask(payload PublishDuePayload) (*asynq.Task, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublishDue, taskPayload, asynq.MaxRetry(publishDueMaxRetry)), nil
}

func EnqueuePublishDue(asynqClient *asynq.Client, payload PublishDuePayload, delay time.Duration, logger *zap.Logger) error {
	task, err := newPublishDueTask(payload)
	if err != nil {
		return err
	}

	info, err := asynqClient.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	logger.Info("Publish task scheduled",
		zap.Int64("post_id", payload.PostID),
		zap.String("task_id", info.ID),
		zap.Duration("delay", delay))
	return nil
}
