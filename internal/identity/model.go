package identity

import "time"

// Principal is an identity that can own a wallet account.
type Principal struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	Picture    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Profile is what an identity provider returns for a signed-in user.
// ExternalID must be stable across sign-ins.
type Profile struct {
	ExternalID string
	Email      string
	Name       string
	Picture    string
}
