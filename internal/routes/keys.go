package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/credential"
	"github.com/congo-pay/walletd/internal/middleware"
)

// RegisterKeyRoutes wires API key management. Only signed-in users may
// manage keys.
func RegisterKeyRoutes(r fiber.Router, h *credential.Handler, authn []fiber.Handler) {
	session := with(authn, middleware.RequireSession())
	r.Post("/keys/create", with(session, h.Create)...)
	r.Post("/keys/rollover", with(session, h.Rollover)...)
	r.Get("/keys", with(session, h.List)...)
	r.Delete("/keys/:id", with(session, h.Revoke)...)
}
