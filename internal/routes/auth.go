package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/auth"
)

// RegisterAuthRoutes wires the identity provider sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler) {
	group := r.Group("/auth")
	group.Get("/google", h.GoogleURL)
	group.Get("/google/callback", h.GoogleCallback)
}
