package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/congo-pay/walletd/internal/metrics"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints and the
// Prometheus scrape endpoint.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		} else {
			dbStatus = "in-memory"
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		} else {
			redisStatus = "disabled"
		}
		status := http.StatusOK
		if (d.DB != nil && dbStatus != "ok") || (d.Cache != nil && redisStatus != "ok") {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
