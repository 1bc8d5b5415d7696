package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tgcontroller "repair-desk/internal/controllers/telegram"
	"repair-desk/pkg/middleware"
)

const healthTimeout = 3 * time.Second

// Pinger - зависимость, доступность которой проверяет /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc позволяет передать проверку функцией.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

func runTelegramRouter(e *echo.Echo, controller *tgcontroller.TelegramController, auth *middleware.WebhookAuth) {
	e.POST(tgcontroller.WebhookPath, controller.HandleTelegramWebhook, auth.Auth)
}

func runSystemRouter(e *echo.Echo, gatherer prometheus.Gatherer, checks map[string]Pinger) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/health", healthHandler(checks))
}

// healthHandler: 200, если все зависимости отвечают, иначе 503 со списком ошибок.
func healthHandler(checks map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		result := map[string]string{}
		status := http.StatusOK
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				result[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		return c.JSON(status, map[string]interface{}{"status": http.StatusText(status), "checks": result})
	}
}
