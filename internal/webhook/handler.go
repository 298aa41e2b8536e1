package webhook

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw request body.
const SignatureHeader = "x-paystack-signature"

// Handler receives processor notifications.
type Handler struct {
	guard *Guard
}

func NewHandler(guard *Guard) *Handler {
	return &Handler{guard: guard}
}

// Receive verifies and applies a notification. Any authenticated delivery,
// including one for an unknown or already settled deposit, is acknowledged.
func (h *Handler) Receive(c *fiber.Ctx) error {
	if _, err := h.guard.Handle(c.UserContext(), c.Body(), c.Get(SignatureHeader)); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": true})
}
