package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type WebhookAuth struct {
	secret string
	logger *zap.Logger
}

func NewWebhookAuth(secret string, logger *zap.Logger) *WebhookAuth {
	return &WebhookAuth{secret: secret, logger: logger}
}

// Auth пропускает только запросы Telegram с правильным секретом.
// Пустой секрет отключает проверку.
func (m *WebhookAuth) Auth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.secret == "" {
			return next(c)
		}
		got := c.Request().Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(m.secret)) != 1 {
			m.logger.Warn("WebhookAuth: неверный секрет вебхука",
				zap.String("remote", c.RealIP()),
				zap.Bool("header_present", got != ""))
			return c.NoContent(http.StatusUnauthorized)
		}
		return next(c)
	}
}
