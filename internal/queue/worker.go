package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// HandlePublishDueTask runs a full batch rather than publishing the one post,
// so the claim in the due fetch stays the only path to the Graph API.
func (q *Queue) HandlePublishDueTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypePublishDue, err, asynq.SkipRetry)
	}

	summary, err := q.batch.Run(ctx)
	if err != nil {
		return err
	}

	q.logger.Info("Publish task handled",
		zap.Int64("post_id", payload.PostID),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return nil
}
