package models

// PublishResult is the terminal outcome of one publish attempt.
type PublishResult struct {
	Status  string // PostStatusPublished or PostStatusFailed
	MediaID string
	Reason  string
	Err     error
}

func Published(mediaID string) PublishResult {
	return PublishResult{Status: PostStatusPublished, MediaID: mediaID}
}

func Failed(reason string, err error) PublishResult {
	return PublishResult{Status: PostStatusFailed, Reason: reason, Err: err}
}

type BatchSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
