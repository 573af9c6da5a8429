package models

import (
	"time"
)

type SocialAccount struct {
	ID             int64     `db:"id" json:"id"`
	ExternalUserID string    `db:"external_user_id" json:"external_user_id"`
	Username       string    `db:"username" json:"username"`
	AccessToken    string    `db:"access_token" json:"-"`
	SessionID      string    `db:"session_id" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
