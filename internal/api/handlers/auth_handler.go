package handlers

import (
	"crypto/subtle"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/internal/service"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

const (
	oauthStateCookie = "ig_oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

type AuthHandler struct {
	s      service.AuthService
	cfg    config.Config
	logger *zap.Logger
}

func NewAuthHandler(cfg config.Config, service service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{s: service, cfg: cfg, logger: logger}
}

func (h *AuthHandler) ConnectInstagram(c *fiber.Ctx) error {
	state, err := utils.GenerateRandomKey(16)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  time.Now().Add(oauthStateTTL),
	})
	return c.Redirect(h.s.AuthURL(state), fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) InstagramCallback(c *fiber.Ctx) error {
	if reason := c.Query("error_description", c.Query("error")); reason != "" {
		return h.redirectWithError(c, reason)
	}

	state := c.Query("state")
	expected := c.Cookies(oauthStateCookie)
	c.ClearCookie(oauthStateCookie)
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		return h.redirectWithError(c, "InvalidState")
	}

	code := c.Query("code")
	if code == "" {
		return h.redirectWithError(c, "NoCode")
	}

	account, err := h.s.InstagramCallback(c.Context(), code, c.Cookies(h.cfg.SessionCookieName))
	if err != nil {
		h.logger.Error("Instagram callback failed", zap.Error(err))
		return h.redirectWithError(c, "CallbackError")
	}

	token, err := utils.GenerateSessionToken(h.cfg.SecretKey, account.SessionID, h.cfg.SessionTTL)
	if err != nil {
		return err
	}

	expires := time.Now().Add(h.cfg.SessionTTL)
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  expires,
	})
	// Readable by the dashboard so it can tell a linked browser from a new one.
	c.Cookie(&fiber.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    account.SessionID,
		HTTPOnly: false,
		Secure:   h.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  expires,
	})

	return c.Redirect(h.cfg.FrontendURL+"/dashboard", fiber.StatusTemporaryRedirect)
}

func (h *AuthHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.ListAccounts(c.Context(), GetSessionID(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(accounts)
}

func (h *AuthHandler) redirectWithError(c *fiber.Ctx, reason string) error {
	return c.Redirect(h.cfg.FrontendURL+"/?error="+url.QueryEscape(reason), fiber.StatusTemporaryRedirect)
}
