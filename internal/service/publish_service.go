package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/models"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

// PublishService drives one due post through create, poll and publish. It never
// returns an error: every failure is folded into a FAILED result with a reason.
type PublishService interface {
	Publish(ctx context.Context, due *models.DuePost) models.PublishResult
}

type publishService struct {
	ig     InstagramService
	poller *StatusPoller
	cipher *utils.TokenCipher
	logger *zap.Logger
}

func NewPublishService(ig InstagramService, poller *StatusPoller, cipher *utils.TokenCipher, logger *zap.Logger) PublishService {
	return &publishService{
		ig:     ig,
		poller: poller,
		cipher: cipher,
		logger: logger,
	}
}

func (s *publishService) Publish(ctx context.Context, due *models.DuePost) models.PublishResult {
	post := due.Post
	log := s.logger.With(zap.Int64("post_id", post.ID), zap.Int64("account_id", post.AccountID))

	accessToken, err := s.cipher.Decrypt(due.AccessToken)
	if err != nil {
		log.Error("Failed to open account access token", zap.Error(err))
		return models.Failed(ReasonCredentialError, fmt.Errorf("decrypt access token: %w", err))
	}

	containerID, err := s.ig.CreateContainer(ctx, due.ExternalUserID, accessToken, post.VideoURL, post.Caption)
	if err != nil {
		return s.fail(log, "create container", err)
	}
	log = log.With(zap.String("container_id", containerID))

	if _, err := s.poller.WaitUntilReady(ctx, containerID, accessToken); err != nil {
		return s.fail(log, "await container", err)
	}

	mediaID, err := s.ig.PublishContainer(ctx, due.ExternalUserID, containerID, accessToken)
	if err != nil {
		return s.fail(log, "publish container", err)
	}

	log.Info("Post published", zap.String("media_id", mediaID))
	return models.Published(mediaID)
}

func (s *publishService) fail(log *zap.Logger, step string, err error) models.PublishResult {
	reason := failureReason(err)
	fields := []zap.Field{zap.String("step", step), zap.String("reason", reason), zap.Error(err)}
	if graphErr, ok := asGraphError(err); ok {
		fields = append(fields, zap.Int("graph_code", graphErr.Code), zap.String("fbtrace_id", graphErr.FbtraceID))
	}
	log.Warn("Publish failed", fields...)
	return models.Failed(reason, fmt.Errorf("%s: %w", step, err))
}
