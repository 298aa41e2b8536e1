package auth

import (
	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/permission"
)

// Kind tells the two principal variants apart in logs and metrics.
type Kind string

const (
	KindSession    Kind = "session"
	KindCredential Kind = "credential"
)

// Principal is the authenticated identity a request runs as. It is either a
// SessionPrincipal or a CredentialPrincipal; no other implementations exist.
type Principal interface {
	ID() string
	Kind() Kind
	Permissions() permission.Set
	principal()
}

// SessionPrincipal is a principal that presented a valid session token. It
// always holds every permission.
type SessionPrincipal struct {
	PrincipalID string
}

func (p SessionPrincipal) ID() string                  { return p.PrincipalID }
func (p SessionPrincipal) Kind() Kind                  { return KindSession }
func (p SessionPrincipal) Permissions() permission.Set { return permission.All() }
func (SessionPrincipal) principal()                    {}

// CredentialPrincipal is a principal that presented a service credential. It
// holds exactly the permissions stored on that credential.
type CredentialPrincipal struct {
	PrincipalID  string
	CredentialID string
	Granted      permission.Set
}

func (p CredentialPrincipal) ID() string                  { return p.PrincipalID }
func (p CredentialPrincipal) Kind() Kind                  { return KindCredential }
func (p CredentialPrincipal) Permissions() permission.Set { return p.Granted }
func (CredentialPrincipal) principal()                    {}

// Require returns a forbidden error naming needed unless perms grants it.
func Require(perms permission.Set, needed permission.Permission) error {
	if perms.Has(needed) {
		return nil
	}
	return apperr.Forbidden(string(needed))
}
