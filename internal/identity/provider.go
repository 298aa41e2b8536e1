package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/congo-pay/walletd/internal/apperr"
)

// Provider is the external identity provider exchange.
type Provider interface {
	// AuthURL returns the consent page URL the user is sent to.
	AuthURL(state string) string
	// Exchange trades an authorization code for the user's profile.
	Exchange(ctx context.Context, code string) (Profile, error)
}

// StaticProvider is a development provider that derives a deterministic
// profile from the authorization code, so the same code always signs in the
// same principal.
type StaticProvider struct {
	BaseURL     string
	RedirectURL string
}

func (p StaticProvider) AuthURL(state string) string {
	q := url.Values{}
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("state", state)
	return strings.TrimRight(p.BaseURL, "?") + "?" + q.Encode()
}

func (p StaticProvider) Exchange(_ context.Context, code string) (Profile, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Profile{}, apperr.Validation("authorization code is required")
	}
	sum := sha256.Sum256([]byte(code))
	id := hex.EncodeToString(sum[:8])
	return Profile{
		ExternalID: "static:" + id,
		Email:      id + "@users.walletd.local",
		Name:       "User " + id[:6],
	}, nil
}
