package service

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/maheshrc27/reelqueue/internal/transfer"
)

// InstagramService is the three-call container protocol of the Graph API.
type InstagramService interface {
	CreateContainer(ctx context.Context, igUserID, accessToken, videoURL, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID, accessToken string) (ContainerStatus, error)
	PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error)
}

type instagramService struct {
	baseURL string
	caller  *RemoteCaller
	logger  *zap.Logger
}

func NewInstagramService(baseURL string, caller *RemoteCaller, logger *zap.Logger) InstagramService {
	return &instagramService{
		baseURL: strings.TrimRight(baseURL, "/"),
		caller:  caller,
		logger:  logger,
	}
}

func (s *instagramService) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return s.baseURL + "/" + strings.Join(escaped, "/")
}

func formRequest(endpoint string, form url.Values) func(context.Context) (*http.Request, error) {
	body := form.Encode()
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}
}

func (s *instagramService) CreateContainer(ctx context.Context, igUserID, accessToken, videoURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("media_type", "REELS")
	form.Set("video_url", videoURL)
	form.Set("caption", caption)
	form.Set("access_token", accessToken)

	var result transfer.ContainerResponse
	err := s.caller.Do(ctx, "create container", formRequest(s.endpoint(igUserID, "media"), form), IsTransientGraphError, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", ErrNoCreationID
	}

	s.logger.Debug("Media container created", zap.String("container_id", result.ID))
	return result.ID, nil
}

func (s *instagramService) ContainerStatus(ctx context.Context, containerID, accessToken string) (ContainerStatus, error) {
	query := url.Values{}
	query.Set("fields", "status_code,status")
	query.Set("access_token", accessToken)
	endpoint := s.endpoint(containerID) + "?" + query.Encode()

	newRequest := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}

	var result transfer.ContainerStatusResponse
	if err := s.caller.Do(ctx, "container status", newRequest, IsTransientGraphError, &result); err != nil {
		return ContainerStatus{}, err
	}

	return ContainerStatus{
		State:  ParseContainerState(result.StatusCode),
		Detail: result.Status,
	}, nil
}

func (s *instagramService) PublishContainer(ctx context.Context, igUserID, containerID, accessToken string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", accessToken)

	var result transfer.ContainerResponse
	err := s.caller.Do(ctx, "publish container", formRequest(s.endpoint(igUserID, "media_publish"), form), IsTransientGraphError, &result)
	if err != nil {
		return "", err
	}
	return result.ID, nil
}

