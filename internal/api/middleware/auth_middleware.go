package middleware

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

type AuthMiddleware struct {
	cfg    config.Config
	logger *zap.Logger
}

func NewAuthMiddleware(cfg config.Config, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, logger: logger}
}

// AuthMiddleware resolves the session cookie to a session id stored in Locals("session_id").
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized: No session token",
			})
		}

		claims, err := utils.ValidateSessionToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1, // Delete cookie
			})

			m.logger.Debug("Session token rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("session_id", claims.SessionID)
		return c.Next()
	}
}
