package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/webhook"
)

// RegisterWebhookRoutes wires the payment processor callback. It is
// authenticated by signature, not by principal.
func RegisterWebhookRoutes(r fiber.Router, h *webhook.Handler) {
	r.Post("/wallet/paystack/webhook", h.Receive)
	r.Post("/payments/paystack/webhook", h.Receive)
}
