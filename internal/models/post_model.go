package models

import "time"

type ScheduledPost struct {
	ID           int64      `db:"id" json:"id"`
	AccountID    int64      `db:"account_id" json:"account_id"`
	VideoURL     string     `db:"video_url" json:"video_url"`
	Caption      string     `db:"caption" json:"caption"`
	ScheduledAt  time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status       string     `db:"status" json:"status"` // PENDING, PUBLISHED, FAILED
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	MediaID      string     `db:"media_id" json:"media_id,omitempty"`
	ClaimedAt    *time.Time `db:"claimed_at" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DuePost is a pending post joined with the credentials of the account that owns it.
type DuePost struct {
	Post           ScheduledPost
	ExternalUserID string
	AccessToken    string
}

const (
	PostStatusPending   = "PENDING"
	PostStatusPublished = "PUBLISHED"
	PostStatusFailed    = "FAILED"
)

// IsTerminal reports whether no further transitions may happen for status.
func IsTerminal(status string) bool {
	return status == PostStatusPublished || status == PostStatusFailed
}
