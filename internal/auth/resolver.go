package auth

import (
	"context"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/metrics"
	"github.com/congo-pay/walletd/internal/permission"
)

// CredentialGrant is what a verified service credential yields.
type CredentialGrant struct {
	CredentialID string
	PrincipalID  string
	Permissions  permission.Set
}

// CredentialVerifier checks a service secret. Implementations return
// invalid, inactive or expired credential errors from apperr.
type CredentialVerifier interface {
	Verify(ctx context.Context, secret string) (CredentialGrant, error)
}

// PrincipalDirectory reports whether a principal still exists.
type PrincipalDirectory interface {
	Exists(ctx context.Context, principalID string) (bool, error)
}

// Resolver turns inbound credentials into a Principal.
//
// When both a session token and a service secret are presented the session
// token wins and the secret is not examined.
type Resolver struct {
	sessions    *Sessions
	credentials CredentialVerifier
	principals  PrincipalDirectory
}

// NewResolver builds a resolver. principals may be nil, in which case a valid
// session token is trusted without a directory lookup.
func NewResolver(sessions *Sessions, credentials CredentialVerifier, principals PrincipalDirectory) *Resolver {
	return &Resolver{sessions: sessions, credentials: credentials, principals: principals}
}

// Resolve authenticates the request. Either argument may be empty.
func (r *Resolver) Resolve(ctx context.Context, sessionToken, secret string) (Principal, error) {
	switch {
	case sessionToken != "":
		p, err := r.resolveSession(ctx, sessionToken)
		recordResolution(KindSession, err)
		return p, err
	case secret != "":
		p, err := r.resolveCredential(ctx, secret)
		recordResolution(KindCredential, err)
		return p, err
	}
	return nil, apperr.ErrUnauthenticated
}

func (r *Resolver) resolveSession(ctx context.Context, token string) (Principal, error) {
	subject, err := r.sessions.Verify(token)
	if err != nil {
		return nil, apperr.ErrInvalidCredential
	}
	if r.principals != nil {
		ok, err := r.principals.Exists(ctx, subject)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.ErrInvalidCredential
		}
	}
	return SessionPrincipal{PrincipalID: subject}, nil
}

func (r *Resolver) resolveCredential(ctx context.Context, secret string) (Principal, error) {
	if r.credentials == nil {
		return nil, apperr.ErrInvalidCredential
	}
	grant, err := r.credentials.Verify(ctx, secret)
	if err != nil {
		return nil, err
	}
	return CredentialPrincipal{
		PrincipalID:  grant.PrincipalID,
		CredentialID: grant.CredentialID,
		Granted:      grant.Permissions,
	}, nil
}

func recordResolution(kind Kind, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	metrics.RecordAuthResolution(string(kind), outcome)
}
