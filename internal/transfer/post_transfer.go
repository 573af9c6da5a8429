package transfer

import "github.com/golang-jwt/jwt/v5"

type PostCreation struct {
	VideoURL    string `json:"videoUrl"`
	Caption     string `json:"caption"`
	ScheduledAt string `json:"scheduledAt"`
	AccountID   int64  `json:"accountId"`
}

type UploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type UploadURLResponse struct {
	URL       string `json:"url"`
	PublicURL string `json:"publicUrl"`
}

type AccountInfo struct {
	ID             int64  `json:"id"`
	ExternalUserID string `json:"instagram_user_id"`
	Username       string `json:"username"`
}

type SessionClaims struct {
	SessionID string `json:"sessionId"`
	jwt.RegisteredClaims
}
