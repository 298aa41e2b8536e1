package credential

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/auth"
)

// Handler exposes API key management endpoints. Every route expects a
// session principal.
type Handler struct {
	service *Service
}

// NewHandler constructs a credential HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	Expiry      string   `json:"expiry"`
}

type rolloverRequest struct {
	ExpiredKeyID string `json:"expired_key_id"`
	Expiry       string `json:"expiry"`
}

type issuedResponse struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"api_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Create issues a new API key.
func (h *Handler) Create(c *fiber.Ctx) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperr.ErrUnauthenticated
	}
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	issued, err := h.service.Create(c.UserContext(), p.ID(), CreateInput{Name: req.Name, Permissions: req.Permissions, Expiry: req.Expiry})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(issuedResponse{ID: issued.ID, APIKey: issued.Secret, ExpiresAt: issued.ExpiresAt})
}

// Rollover replaces an expired API key.
func (h *Handler) Rollover(c *fiber.Ctx) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperr.ErrUnauthenticated
	}
	var req rolloverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.ExpiredKeyID == "" {
		return apperr.Validation("expired_key_id is required")
	}
	issued, err := h.service.Rollover(c.UserContext(), p.ID(), req.ExpiredKeyID, req.Expiry)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(issuedResponse{ID: issued.ID, APIKey: issued.Secret, ExpiresAt: issued.ExpiresAt})
}

// List returns the caller's API keys without secrets or hashes.
func (h *Handler) List(c *fiber.Ctx) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperr.ErrUnauthenticated
	}
	views, err := h.service.List(c.UserContext(), p.ID())
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(views)
}

// Revoke deactivates an API key.
func (h *Handler) Revoke(c *fiber.Ctx) error {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return apperr.ErrUnauthenticated
	}
	if err := h.service.Revoke(c.UserContext(), p.ID(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
