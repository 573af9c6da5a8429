package job

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/service"
)

// BatchJob runs the publish batch from the cron schedule. A firing that lands
// while the previous run is still going is skipped.
type BatchJob struct {
	batch   service.BatchService
	timeout time.Duration
	running atomic.Bool
	logger  *zap.Logger
}

func NewBatchJob(batch service.BatchService, timeout time.Duration, logger *zap.Logger) *BatchJob {
	return &BatchJob{
		batch:   batch,
		timeout: timeout,
		logger:  logger,
	}
}

func (j *BatchJob) Run() {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Info("Previous publish batch still running, skipping firing")
		return
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.batch.Run(ctx); err != nil {
		j.logger.Error("Scheduled publish batch failed", zap.Error(err))
	}
}
