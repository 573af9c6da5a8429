package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/internal/repository"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

func newInstagramOAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("code") != "good-code" || r.FormValue("client_secret") != "app-secret" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error_type":"OAuthException","code":400,"error_message":"Invalid authorization code"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		// user_id beyond float64 precision must not leak into the stored id.
		fmt.Fprint(w, `{"access_token":"short-token","user_id":17841400000000001}`)
	})
	mux.HandleFunc("GET /access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "short-token" || r.URL.Query().Get("grant_type") != "ig_exchange_token" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"bad token","code":190}}`)
			return
		}
		fmt.Fprint(w, `{"access_token":"long-token","token_type":"bearer","expires_in":5184000}`)
	})
	mux.HandleFunc("GET /me", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "long-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"17841400000000001","username":"reels.daily"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAuthService(t *testing.T, srv *httptest.Server, store *repository.MemoryStore) (AuthService, *utils.TokenCipher) {
	t.Helper()
	cipher, err := utils.NewTokenCipher([]byte(testSecretKey))
	require.NoError(t, err)

	cfg := config.Instagram{
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		RedirectURI:  "http://localhost:3000/auth/instagram/callback",
		AuthURL:      srv.URL + "/oauth/authorize",
		TokenURL:     srv.URL + "/oauth/access_token",
		UserAPIURL:   srv.URL,
	}
	caller, _ := newTestCaller(1)
	return NewAuthService(cfg, store.Accounts(), cipher, caller, zap.NewNop()), cipher
}

func TestAuthService_AuthURL(t *testing.T) {
	srv := newInstagramOAuthServer(t)
	svc, _ := newTestAuthService(t, srv, repository.NewMemoryStore(time.Minute))

	u, err := url.Parse(svc.AuthURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "app-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "instagram_business_content_publish")
}

func TestAuthService_InstagramCallback(t *testing.T) {
	ctx := context.Background()
	srv := newInstagramOAuthServer(t)
	store := repository.NewMemoryStore(time.Minute)
	svc, cipher := newTestAuthService(t, srv, store)

	account, err := svc.InstagramCallback(ctx, "good-code", "")
	require.NoError(t, err)

	assert.Equal(t, "17841400000000001", account.ExternalUserID)
	assert.Equal(t, "reels.daily", account.Username)
	assert.Len(t, account.SessionID, sessionIDLength)
	assert.NotEqual(t, "long-token", account.AccessToken)
	assert.WithinDuration(t, time.Now().Add(60*24*time.Hour), account.TokenExpiresAt, time.Minute)

	plain, err := cipher.Decrypt(account.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "long-token", plain)

	again, err := svc.InstagramCallback(ctx, "good-code", account.SessionID)
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID, "relinking the same user updates the row")
	assert.Equal(t, account.SessionID, again.SessionID)

	infos, err := svc.ListAccounts(ctx, account.SessionID)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "17841400000000001", infos[0].ExternalUserID)
}

func TestAuthService_InstagramCallbackErrors(t *testing.T) {
	ctx := context.Background()
	srv := newInstagramOAuthServer(t)
	svc, _ := newTestAuthService(t, srv, repository.NewMemoryStore(time.Minute))

	_, err := svc.InstagramCallback(ctx, "", "")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.InstagramCallback(ctx, "bad-code", "")
	assert.ErrorContains(t, err, "exchange authorization code")
}
