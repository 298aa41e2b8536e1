package auth

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/identity"
)

// Handler exposes the identity provider sign-in endpoints.
type Handler struct {
	provider identity.Provider
	ids      *identity.Service
	sessions *Sessions
}

func NewHandler(provider identity.Provider, ids *identity.Service, sessions *Sessions) *Handler {
	return &Handler{provider: provider, ids: ids, sessions: sessions}
}

type signInResponse struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	WalletNumber string    `json:"wallet_number"`
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GoogleURL returns the consent page the client should redirect to.
func (h *Handler) GoogleURL(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"google_auth_url": h.provider.AuthURL(uuid.NewString())})
}

// GoogleCallback exchanges the authorization code, provisions the principal
// and its wallet on first sign-in, and returns a session token.
func (h *Handler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return apperr.Validation("code is required")
	}
	profile, err := h.provider.Exchange(c.UserContext(), code)
	if err != nil {
		if apperr.KindOf(err) != "" {
			return err
		}
		return apperr.External("identity provider exchange failed", err)
	}
	p, account, err := h.ids.Provision(c.UserContext(), profile)
	if err != nil {
		return err
	}
	token, err := h.sessions.Issue(p.ID, p.Email)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(signInResponse{
		UserID:       p.ID,
		Email:        p.Email,
		Name:         p.Name,
		WalletNumber: account.Number,
		AccessToken:  token.AccessToken,
		TokenType:    "bearer",
		ExpiresAt:    token.ExpiresAt,
	})
}
