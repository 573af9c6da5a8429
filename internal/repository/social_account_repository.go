package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/reelqueue/internal/models"
)

type SocialAccountRepository interface {
	// Upsert inserts the account or, when the external user id is already linked,
	// replaces its token and session.
	Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	ListBySessionID(ctx context.Context, sessionID string) ([]*models.SocialAccount, error)
	CheckBySessionID(ctx context.Context, accountID int64, sessionID string) (bool, error)
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

func (r *socialAccountRepository) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO instagram_accounts (external_user_id, username, access_token, session_id, token_expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_user_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			session_id = EXCLUDED.session_id,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sa.ExternalUserID,
		sa.Username,
		sa.AccessToken,
		sa.SessionID,
		sa.TokenExpiresAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert instagram account: %w", err)
	}
	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `
		SELECT id, external_user_id, username, access_token, session_id, token_expires_at, created_at, updated_at
		FROM instagram_accounts WHERE id = $1
	`

	var sa models.SocialAccount
	err := r.db.QueryRowContext(ctx, query, id).Scan(&sa.ID, &sa.ExternalUserID, &sa.Username, &sa.AccessToken,
		&sa.SessionID, &sa.TokenExpiresAt, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get instagram account %d: %w", id, err)
	}
	return &sa, nil
}

func (r *socialAccountRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, external_user_id, username, token_expires_at, created_at, updated_at
		FROM instagram_accounts
		WHERE session_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list instagram accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa := models.SocialAccount{SessionID: sessionID}
		if err := rows.Scan(&sa.ID, &sa.ExternalUserID, &sa.Username, &sa.TokenExpiresAt, &sa.CreatedAt, &sa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instagram account: %w", err)
		}
		accounts = append(accounts, &sa)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *socialAccountRepository) CheckBySessionID(ctx context.Context, accountID int64, sessionID string) (bool, error) {
	query := "SELECT 1 FROM instagram_accounts WHERE id = $1 AND session_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, sessionID).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check instagram account %d: %w", accountID, err)
	}
	return result == 1, nil
}
