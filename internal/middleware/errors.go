package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindUnauthenticated:    http.StatusUnauthorized,
	apperr.KindInvalidCredential:  http.StatusUnauthorized,
	apperr.KindCredentialExpired:  http.StatusForbidden,
	apperr.KindCredentialInactive: http.StatusForbidden,
	apperr.KindForbidden:          http.StatusForbidden,
	apperr.KindValidation:         http.StatusBadRequest,
	apperr.KindSameAccount:        http.StatusBadRequest,
	apperr.KindInsufficientFunds:  http.StatusBadRequest,
	apperr.KindLimitExceeded:      http.StatusBadRequest,
	apperr.KindSignature:          http.StatusBadRequest,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindExternalService:    http.StatusPaymentRequired,
}

// StatusOf returns the HTTP status for an error kind.
func StatusOf(kind apperr.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// StatusForError returns the HTTP status ErrorHandler will write for err.
func StatusForError(err error) int {
	var (
		appErr   *apperr.Error
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &appErr):
		return StatusOf(appErr.Kind)
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error as {"error": kind, "message": msg}.
// Uncategorized errors are logged and reported as internal without detail.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			appErr   *apperr.Error
			fiberErr *fiber.Error
			status   int
			body     fiber.Map
		)
		switch {
		case errors.As(err, &appErr):
			status = StatusOf(appErr.Kind)
			body = fiber.Map{"error": appErr.Kind, "message": appErr.Message}
			if appErr.Permission != "" {
				body["permission"] = appErr.Permission
			}
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
			body = fiber.Map{"error": statusKind(status), "message": fiberErr.Message}
		default:
			status = http.StatusInternalServerError
			body = fiber.Map{"error": "internal", "message": "internal server error"}
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}
		return c.Status(status).JSON(body)
	}
}

func statusKind(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
