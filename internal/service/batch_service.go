package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maheshrc27/reelqueue/internal/models"
	"github.com/maheshrc27/reelqueue/internal/repository"
)

type BatchService interface {
	// Trigger checks the bearer credential of an external firing before running a batch.
	Trigger(ctx context.Context, authorization string) (models.BatchSummary, error)
	Run(ctx context.Context) (models.BatchSummary, error)
}

type batchService struct {
	posts       repository.PostRepository
	publisher   PublishService
	clock       TimeProvider
	secret      string
	concurrency int
	lease       time.Duration
	logger      *zap.Logger
}

// NewBatchService bounds every Run by lease, the claim lease of the due fetch,
// so claimed posts are never re-claimed while their batch is still running.
// A zero lease leaves Run bounded only by the caller's context.
func NewBatchService(
	posts repository.PostRepository,
	publisher PublishService,
	clock TimeProvider,
	secret string,
	concurrency int,
	lease time.Duration,
	logger *zap.Logger) BatchService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &batchService{
		posts:       posts,
		publisher:   publisher,
		clock:       clock,
		secret:      secret,
		concurrency: concurrency,
		lease:       lease,
		logger:      logger,
	}
}

func (s *batchService) Trigger(ctx context.Context, authorization string) (models.BatchSummary, error) {
	if s.secret == "" {
		return models.BatchSummary{}, ErrUnauthorizedTrigger
	}
	expected := "Bearer " + s.secret
	if subtle.ConstantTimeCompare([]byte(authorization), []byte(expected)) != 1 {
		return models.BatchSummary{}, ErrUnauthorizedTrigger
	}
	return s.Run(ctx)
}

func (s *batchService) Run(ctx context.Context) (models.BatchSummary, error) {
	var summary models.BatchSummary

	if s.lease > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lease)
		defer cancel()
	}

	now := s.clock.Now().UTC()
	due, err := s.posts.FetchDue(ctx, now)
	if err != nil {
		return summary, err
	}
	if len(due) == 0 {
		return summary, nil
	}
	s.logger.Info("Processing due posts", zap.Int("count", len(due)), zap.Time("now", now))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, d := range due {
		g.Go(func() error {
			result := s.publisher.Publish(gctx, d)

			recorded, err := s.record(gctx, d, result)
			if err != nil || !recorded {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if result.Status == models.PostStatusPublished {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	s.logger.Info("Batch finished",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Error(err))
	return summary, err
}

// record persists the terminal status of one item. It reports false when the
// item was left PENDING, either because the batch was cancelled before the item
// finished or because another writer already moved it out of PENDING.
func (s *batchService) record(ctx context.Context, d *models.DuePost, result models.PublishResult) (bool, error) {
	log := s.logger.With(zap.Int64("post_id", d.Post.ID))

	writeCtx := ctx
	switch {
	case result.Status == models.PostStatusPublished:
		// The media is live; the write must land even if the batch is being torn down.
		writeCtx = context.WithoutCancel(ctx)
	case ctx.Err() != nil:
		log.Info("Batch cancelled, leaving post pending", zap.String("reason", result.Reason))
		return false, nil
	}

	errorMessage := ""
	if result.Status == models.PostStatusFailed {
		errorMessage = result.Reason
		if result.Err != nil {
			errorMessage = fmt.Sprintf("%s: %v", result.Reason, result.Err)
		}
	}

	err := s.posts.UpdateStatus(writeCtx, d.Post.ID, result.Status, errorMessage, result.MediaID)
	if errors.Is(err, repository.ErrStatusConflict) {
		log.Warn("Post already left pending, status not written", zap.String("status", result.Status))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("persist status of post %d: %w", d.Post.ID, err)
	}
	return true, nil
}
