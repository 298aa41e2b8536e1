package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/auth"
)

// Audit emits one structured log line per request with the acting principal.
// Scrape and health traffic is skipped. Credential secrets never reach the
// log: only the principal id and kind are recorded.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Path() {
		case "/healthz", "/metrics":
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			// The error handler has not written the response yet.
			status = StatusForError(err)
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDFrom(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if p, ok := auth.PrincipalFrom(c); ok {
			attrs = append(attrs, slog.String("principal_id", p.ID()), slog.String("principal_kind", string(p.Kind())))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
		case err != nil:
			logger.Warn("request rejected", append(attrs, slog.Any("error", err))...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
