package credential

import (
	"strings"
	"time"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/permission"
)

// MaxActive is the number of active, unexpired credentials a principal may
// hold at once.
const MaxActive = 5

// Credential is a stored service credential. Only the hash of the secret is
// kept; the plaintext leaves the process exactly once, in Issued.
type Credential struct {
	ID           string
	PrincipalID  string
	Name         string
	Hash         string
	LookupPrefix string
	Permissions  permission.Set
	ExpiresAt    time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the credential is past its expiry at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// View is the listing shape of a credential. It has no field for the hash or
// the secret.
type View struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	Active      bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c Credential) View() View {
	return View{
		ID:          c.ID,
		Name:        c.Name,
		Permissions: c.Permissions.Strings(),
		ExpiresAt:   c.ExpiresAt,
		Active:      c.Active,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// Issued carries a freshly minted secret back to the caller.
type Issued struct {
	ID        string
	Secret    string
	ExpiresAt time.Time
}

// Expiry is a duration token accepted when creating or rolling over a
// credential.
type Expiry string

const (
	ExpiryHour  Expiry = "1H"
	ExpiryDay   Expiry = "1D"
	ExpiryMonth Expiry = "1M"
	ExpiryYear  Expiry = "1Y"
)

// ParseExpiry converts a token into its duration. A month is 30 days and a
// year is 365.
func ParseExpiry(token string) (time.Duration, error) {
	switch Expiry(strings.ToUpper(strings.TrimSpace(token))) {
	case ExpiryHour:
		return time.Hour, nil
	case ExpiryDay:
		return 24 * time.Hour, nil
	case ExpiryMonth:
		return 30 * 24 * time.Hour, nil
	case ExpiryYear:
		return 365 * 24 * time.Hour, nil
	}
	return 0, apperr.Validation("invalid expiry %q: expected one of 1H, 1D, 1M, 1Y", token)
}
