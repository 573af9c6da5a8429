package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/internal/models"
	"github.com/maheshrc27/reelqueue/internal/repository"
	"github.com/maheshrc27/reelqueue/internal/transfer"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

const sessionIDLength = 24

var instagramScopes = []string{"instagram_business_basic", "instagram_business_content_publish"}

type AuthService interface {
	AuthURL(state string) string
	// InstagramCallback exchanges an authorization code for a long-lived token and
	// links the account to sessionID, minting a new session id when it is empty.
	InstagramCallback(ctx context.Context, code, sessionID string) (*models.SocialAccount, error)
	ListAccounts(ctx context.Context, sessionID string) ([]*transfer.AccountInfo, error)
}

type authService struct {
	oauth      *oauth2.Config
	userAPIURL string
	secret     string
	accounts   repository.SocialAccountRepository
	cipher     *utils.TokenCipher
	caller     *RemoteCaller
	logger     *zap.Logger
}

func NewAuthService(
	cfg config.Instagram,
	accounts repository.SocialAccountRepository,
	cipher *utils.TokenCipher,
	caller *RemoteCaller,
	logger *zap.Logger) AuthService {
	return &authService{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       instagramScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userAPIURL: strings.TrimRight(cfg.UserAPIURL, "/"),
		secret:     cfg.ClientSecret,
		accounts:   accounts,
		cipher:     cipher,
		caller:     caller,
		logger:     logger,
	}
}

func (s *authService) AuthURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

func (s *authService) InstagramCallback(ctx context.Context, code, sessionID string) (*models.SocialAccount, error) {
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "authorization code is empty"}
	}
	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" || s.oauth.RedirectURL == "" {
		return nil, errors.New("instagram oauth configuration is incomplete")
	}

	// The short-lived response also carries a numeric user_id; it is ignored so
	// the id is only ever taken from /me as a string.
	shortLived, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	longLived, err := s.longLivedToken(ctx, shortLived.AccessToken)
	if err != nil {
		return nil, err
	}

	userInfo, err := s.userInfo(ctx, longLived.AccessToken)
	if err != nil {
		return nil, err
	}
	if userInfo.UserID == "" {
		return nil, errors.New("instagram user info carried no id")
	}

	if sessionID == "" {
		sessionID, err = gonanoid.New(sessionIDLength)
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
	}

	sealed, err := s.cipher.Encrypt(longLived.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}

	account := &models.SocialAccount{
		ExternalUserID: userInfo.UserID,
		Username:       userInfo.Username,
		AccessToken:    sealed,
		SessionID:      sessionID,
		TokenExpiresAt: longLived.ExpiresAt,
	}
	account.ID, err = s.accounts.Upsert(ctx, account)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Instagram account linked",
		zap.Int64("account_id", account.ID),
		zap.String("username", account.Username))
	return account, nil
}

func (s *authService) longLivedToken(ctx context.Context, shortLivedToken string) (*transfer.InstagramToken, error) {
	query := url.Values{}
	query.Set("grant_type", "ig_exchange_token")
	query.Set("client_secret", s.secret)
	query.Set("access_token", shortLivedToken)
	endpoint := s.userAPIURL + "/access_token?" + query.Encode()

	var result transfer.LongLivedTokenResponse
	err := s.caller.Do(ctx, "long-lived token", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, IsTransientGraphError, &result)
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("long-lived token response carried no token")
	}

	return &transfer.InstagramToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(result.ExpiresIn) * time.Second).UTC(),
	}, nil
}

func (s *authService) userInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error) {
	query := url.Values{}
	query.Set("fields", "id,username")
	query.Set("access_token", accessToken)
	endpoint := s.userAPIURL + "/me?" + query.Encode()

	var info transfer.InstagramUserInfo
	err := s.caller.Do(ctx, "user info", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, IsTransientGraphError, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *authService) ListAccounts(ctx context.Context, sessionID string) ([]*transfer.AccountInfo, error) {
	accounts, err := s.accounts.ListBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	infos := make([]*transfer.AccountInfo, 0, len(accounts))
	for _, acc := range accounts {
		infos = append(infos, &transfer.AccountInfo{
			ID:             acc.ID,
			ExternalUserID: acc.ExternalUserID,
			Username:       acc.Username,
		})
	}
	return infos, nil
}
