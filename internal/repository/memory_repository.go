package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/reelqueue/internal/models"
)

// MemoryStore keeps posts and accounts in process memory. Posts and Accounts
// expose it through the same interfaces as the PostgreSQL repositories, with the
// same claim semantics. It backs the "memory" database mode used for local runs.
type MemoryStore struct {
	mu         sync.Mutex
	claimLease time.Duration
	posts      map[int64]*models.ScheduledPost
	accounts   map[int64]*models.SocialAccount
	nextPost   int64
	nextAcc    int64
}

func NewMemoryStore(claimLease time.Duration) *MemoryStore {
	return &MemoryStore{
		claimLease: claimLease,
		posts:      make(map[int64]*models.ScheduledPost),
		accounts:   make(map[int64]*models.SocialAccount),
	}
}

func (s *MemoryStore) Posts() PostRepository {
	return &memoryPostRepository{s}
}

func (s *MemoryStore) Accounts() SocialAccountRepository {
	return &memoryAccountRepository{s}
}

type memoryPostRepository struct {
	s *MemoryStore
}

func (r *memoryPostRepository) Create(_ context.Context, post *models.ScheduledPost) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[post.AccountID]; !ok {
		return 0, fmt.Errorf("insert scheduled post: account %d does not exist", post.AccountID)
	}

	s.nextPost++
	now := time.Now().UTC()
	p := *post
	p.ID = s.nextPost
	p.ScheduledAt = p.ScheduledAt.UTC()
	p.Status = models.PostStatusPending
	p.CreatedAt, p.UpdatedAt = now, now
	s.posts[p.ID] = &p
	return p.ID, nil
}

func (r *memoryPostRepository) GetByID(_ context.Context, id int64) (*models.ScheduledPost, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memoryPostRepository) ListBySessionID(_ context.Context, sessionID string) ([]*models.ScheduledPost, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var posts []*models.ScheduledPost
	for _, p := range s.posts {
		if acc := s.accounts[p.AccountID]; acc != nil && acc.SessionID == sessionID {
			cp := *p
			posts = append(posts, &cp)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ScheduledAt.After(posts[j].ScheduledAt) })
	return posts, nil
}

func (r *memoryPostRepository) FetchDue(_ context.Context, now time.Time) ([]*models.DuePost, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.UTC()
	cutoff := now.Add(-s.claimLease)

	var due []*models.DuePost
	for _, p := range s.posts {
		if p.Status != models.PostStatusPending || p.ScheduledAt.After(now) {
			continue
		}
		if p.ClaimedAt != nil && !p.ClaimedAt.Before(cutoff) {
			continue
		}
		acc, ok := s.accounts[p.AccountID]
		if !ok {
			continue
		}

		claimedAt := now
		p.ClaimedAt = &claimedAt
		due = append(due, &models.DuePost{
			Post:           *p,
			ExternalUserID: acc.ExternalUserID,
			AccessToken:    acc.AccessToken,
		})
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Post.ID < due[j].Post.ID })
	return due, nil
}

func (r *memoryPostRepository) UpdateStatus(_ context.Context, postID int64, status, errorMessage, mediaID string) error {
	if !models.IsTerminal(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}

	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok || p.Status != models.PostStatusPending {
		return fmt.Errorf("update status of post %d: %w", postID, ErrStatusConflict)
	}
	p.Status = status
	p.ErrorMessage = errorMessage
	p.MediaID = mediaID
	p.ClaimedAt = nil
	p.UpdatedAt = time.Now().UTC()
	return nil
}

type memoryAccountRepository struct {
	s *MemoryStore
}

func (r *memoryAccountRepository) Upsert(_ context.Context, sa *models.SocialAccount) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range s.accounts {
		if existing.ExternalUserID == sa.ExternalUserID {
			existing.Username = sa.Username
			existing.AccessToken = sa.AccessToken
			existing.SessionID = sa.SessionID
			existing.TokenExpiresAt = sa.TokenExpiresAt
			existing.UpdatedAt = now
			return existing.ID, nil
		}
	}

	s.nextAcc++
	acc := *sa
	acc.ID = s.nextAcc
	acc.CreatedAt, acc.UpdatedAt = now, now
	s.accounts[acc.ID] = &acc
	return acc.ID, nil
}

func (r *memoryAccountRepository) GetByID(_ context.Context, id int64) (*models.SocialAccount, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (r *memoryAccountRepository) ListBySessionID(_ context.Context, sessionID string) ([]*models.SocialAccount, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []*models.SocialAccount
	for _, acc := range s.accounts {
		if acc.SessionID == sessionID {
			cp := *acc
			accounts = append(accounts, &cp)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (r *memoryAccountRepository) CheckBySessionID(_ context.Context, accountID int64, sessionID string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	return ok && acc.SessionID == sessionID, nil
}
