package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/reelqueue/internal/models"
)

// ErrStatusConflict is returned when a status write targets a post that already left PENDING.
var ErrStatusConflict = errors.New("post is no longer pending")

type PostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]*models.ScheduledPost, error)
	// FetchDue returns every PENDING post with scheduled_at <= now and claims it for the
	// lease so an overlapping batch does not pick it up again.
	FetchDue(ctx context.Context, now time.Time) ([]*models.DuePost, error)
	// UpdateStatus moves a PENDING post to a terminal status and releases its claim.
	UpdateStatus(ctx context.Context, postID int64, status, errorMessage, mediaID string) error
}

type postRepository struct {
	db         *sql.DB
	claimLease time.Duration
}

func NewPostRepository(db *sql.DB, claimLease time.Duration) PostRepository {
	return &postRepository{db: db, claimLease: claimLease}
}

const postColumns = `id, account_id, video_url, caption, scheduled_at, status, error_message, media_id, claimed_at, created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts (account_id, video_url, caption, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		post.AccountID,
		post.VideoURL,
		post.Caption,
		post.ScheduledAt.UTC(),
		models.PostStatusPending,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert scheduled post: %w", err)
	}
	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`

	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get scheduled post %d: %w", id, err)
	}
	return post, nil
}

func (r *postRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*models.ScheduledPost, error) {
	query := `
		SELECT sp.id, sp.account_id, sp.video_url, sp.caption, sp.scheduled_at, sp.status,
			sp.error_message, sp.media_id, sp.claimed_at, sp.created_at, sp.updated_at
		FROM scheduled_posts sp
		JOIN instagram_accounts ia ON ia.id = sp.account_id
		WHERE ia.session_id = $1
		ORDER BY sp.scheduled_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list scheduled posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *postRepository) FetchDue(ctx context.Context, now time.Time) ([]*models.DuePost, error) {
	query := `
		WITH due AS (
			SELECT id
			FROM scheduled_posts
			WHERE status = $1
				AND scheduled_at <= $2
				AND (claimed_at IS NULL OR claimed_at < $3)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_posts sp
		SET claimed_at = $2
		FROM due, instagram_accounts ia
		WHERE sp.id = due.id AND ia.id = sp.account_id
		RETURNING sp.id, sp.account_id, sp.video_url, sp.caption, sp.scheduled_at, sp.status,
			sp.created_at, sp.updated_at, ia.external_user_id, ia.access_token
	`
	now = now.UTC()
	rows, err := r.db.QueryContext(ctx, query, models.PostStatusPending, now, now.Add(-r.claimLease))
	if err != nil {
		return nil, fmt.Errorf("fetch due posts: %w", err)
	}
	defer rows.Close()

	var due []*models.DuePost
	for rows.Next() {
		var d models.DuePost
		p := &d.Post
		err := rows.Scan(&p.ID, &p.AccountID, &p.VideoURL, &p.Caption, &p.ScheduledAt, &p.Status,
			&p.CreatedAt, &p.UpdatedAt, &d.ExternalUserID, &d.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("scan due post: %w", err)
		}
		claimedAt := now
		p.ClaimedAt = &claimedAt
		due = append(due, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch due posts: %w", err)
	}
	return due, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, postID int64, status, errorMessage, mediaID string) error {
	if !models.IsTerminal(status) {
		return fmt.Errorf("status %q is not terminal", status)
	}

	query := `
		UPDATE scheduled_posts
		SET status = $1,
			error_message = $2,
			media_id = $3,
			claimed_at = NULL,
			updated_at = $4
		WHERE id = $5 AND status = $6
	`
	result, err := r.db.ExecContext(ctx, query, status, errorMessage, mediaID, time.Now().UTC(), postID, models.PostStatusPending)
	if err != nil {
		return fmt.Errorf("update status of post %d: %w", postID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return fmt.Errorf("update status of post %d: %w", postID, ErrStatusConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	var claimedAt sql.NullTime
	err := row.Scan(&post.ID, &post.AccountID, &post.VideoURL, &post.Caption, &post.ScheduledAt, &post.Status,
		&post.ErrorMessage, &post.MediaID, &claimedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if claimedAt.Valid {
		post.ClaimedAt = &claimedAt.Time
	}
	return &post, nil
}
