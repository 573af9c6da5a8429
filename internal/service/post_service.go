package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maheshrc27/reelqueue/internal/models"
	"github.com/maheshrc27/reelqueue/internal/repository"
	"github.com/maheshrc27/reelqueue/internal/transfer"
)

// Instagram rejects captions above this many characters.
const maxCaptionLength = 2200

// Formats accepted for scheduledAt. The second is what a datetime-local input sends;
// it carries no zone and is read as UTC.
var scheduleLayouts = []string{time.RFC3339, "2006-01-02T15:04"}

type PostService interface {
	// Schedule stores a PENDING post and returns its id and the delay until it is due.
	Schedule(ctx context.Context, sessionID string, pc *transfer.PostCreation) (int64, time.Duration, error)
	List(ctx context.Context, sessionID string) ([]*models.ScheduledPost, error)
}

type postService struct {
	pr    repository.PostRepository
	ac    repository.SocialAccountRepository
	clock TimeProvider
}

func NewPostService(pr repository.PostRepository, ac repository.SocialAccountRepository, clock TimeProvider) PostService {
	return &postService{
		pr:    pr,
		ac:    ac,
		clock: clock,
	}
}

func (s *postService) Schedule(ctx context.Context, sessionID string, pc *transfer.PostCreation) (int64, time.Duration, error) {
	if pc == nil {
		return 0, 0, &ValidationError{Field: "body", Message: "post data is missing"}
	}

	videoURL := strings.TrimSpace(pc.VideoURL)
	if err := validateVideoURL(videoURL); err != nil {
		return 0, 0, err
	}
	if pc.AccountID <= 0 {
		return 0, 0, &ValidationError{Field: "accountId", Message: "is required"}
	}
	if utf8.RuneCountInString(pc.Caption) > maxCaptionLength {
		return 0, 0, &ValidationError{Field: "caption", Message: fmt.Sprintf("must be at most %d characters", maxCaptionLength)}
	}
	scheduledAt, err := parseScheduledAt(pc.ScheduledAt)
	if err != nil {
		return 0, 0, err
	}

	owned, err := s.ac.CheckBySessionID(ctx, pc.AccountID, sessionID)
	if err != nil {
		return 0, 0, err
	}
	if !owned {
		return 0, 0, ErrAccountForbidden
	}

	postID, err := s.pr.Create(ctx, &models.ScheduledPost{
		AccountID:   pc.AccountID,
		VideoURL:    videoURL,
		Caption:     pc.Caption,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return 0, 0, err
	}

	delay := scheduledAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	return postID, delay, nil
}

func (s *postService) List(ctx context.Context, sessionID string) ([]*models.ScheduledPost, error) {
	posts, err := s.pr.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.ScheduledPost{}
	}
	return posts, nil
}

func validateVideoURL(raw string) error {
	if raw == "" {
		return &ValidationError{Field: "videoUrl", Message: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "videoUrl", Message: "must be an absolute http(s) URL"}
	}
	return nil
}

func parseScheduledAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ValidationError{Field: "scheduledAt", Message: "is required"}
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Field: "scheduledAt", Message: "must be RFC 3339 or YYYY-MM-DDTHH:MM"}
}
