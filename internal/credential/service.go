package credential

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/auth"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/permission"
)

// Service manages the credential lifecycle and verifies presented secrets.
type Service struct {
	repo   Repository
	hasher *Hasher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a credential service.
func NewService(repo Repository, hasher *Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput describes a new credential.
type CreateInput struct {
	Name        string
	Permissions []string
	Expiry      string
}

// Create issues a new credential for principalID. The returned secret is
// never stored and cannot be retrieved again.
func (s *Service) Create(ctx context.Context, principalID string, in CreateInput) (Issued, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Issued{}, apperr.Validation("name is required")
	}
	perms, err := permission.Parse(in.Permissions)
	if err != nil {
		return Issued{}, err
	}
	ttl, err := ParseExpiry(in.Expiry)
	if err != nil {
		return Issued{}, err
	}

	var issued Issued
	err = s.repo.WithPrincipal(ctx, principalID, func(tx Tx) error {
		var err error
		issued, err = s.issue(ctx, tx, principalID, name, perms, ttl)
		return err
	})
	if err != nil {
		return Issued{}, err
	}
	s.logger.Info("api key created", "principal_id", principalID, "key_id", issued.ID, "expires_at", issued.ExpiresAt)
	return issued, nil
}

// Rollover replaces an expired, still active credential with a new one
// carrying the same name and permissions. Each credential can be rolled over
// at most once.
func (s *Service) Rollover(ctx context.Context, principalID, credentialID, expiry string) (Issued, error) {
	ttl, err := ParseExpiry(expiry)
	if err != nil {
		return Issued{}, err
	}
	if _, err := s.owned(ctx, principalID, credentialID, true); err != nil {
		return Issued{}, err
	}

	var issued Issued
	err = s.repo.WithPrincipal(ctx, principalID, func(tx Tx) error {
		old, err := tx.Lock(ctx, credentialID)
		if err != nil {
			return err
		}
		// Revoked and already rolled over keys are both inactive and stay dead.
		if !old.Active {
			return &apperr.Error{Kind: apperr.KindCredentialInactive, Message: "API key was revoked or already rolled over"}
		}
		now := s.now()
		if !old.Expired(now) {
			return apperr.Validation("API key has not expired yet")
		}
		if err := tx.Deactivate(ctx, old.ID, now); err != nil {
			return err
		}
		issued, err = s.issue(ctx, tx, principalID, old.Name, old.Permissions, ttl)
		return err
	})
	if err != nil {
		return Issued{}, err
	}
	s.logger.Info("api key rolled over", "principal_id", principalID, "old_key_id", credentialID, "key_id", issued.ID)
	return issued, nil
}

// Revoke deactivates a credential. Revoking an inactive credential succeeds
// without changing it.
func (s *Service) Revoke(ctx context.Context, principalID, credentialID string) error {
	if _, err := s.owned(ctx, principalID, credentialID, false); err != nil {
		return err
	}
	return s.repo.WithPrincipal(ctx, principalID, func(tx Tx) error {
		c, err := tx.Lock(ctx, credentialID)
		if err != nil {
			return err
		}
		if !c.Active {
			return nil
		}
		if err := tx.Deactivate(ctx, c.ID, s.now()); err != nil {
			return err
		}
		s.logger.Info("api key revoked", "principal_id", principalID, "key_id", credentialID)
		return nil
	})
}

// List returns every credential of principalID, newest first.
func (s *Service) List(ctx context.Context, principalID string) ([]View, error) {
	creds, err := s.repo.ListByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	views := make([]View, len(creds))
	for i, c := range creds {
		views[i] = c.View()
	}
	return views, nil
}

// Verify resolves a presented secret to its credential. Expiry is checked
// before the active flag, so an expired credential is always reported as
// expired.
func (s *Service) Verify(ctx context.Context, secret string) (auth.CredentialGrant, error) {
	lookup, ok := s.hasher.Split(secret)
	if !ok {
		return auth.CredentialGrant{}, apperr.ErrInvalidCredential
	}
	candidates, err := s.repo.FindByLookupPrefix(ctx, lookup)
	if err != nil {
		return auth.CredentialGrant{}, err
	}

	var (
		match Credential
		found bool
	)
	for _, c := range candidates {
		if s.hasher.Matches(secret, c.Hash) {
			match, found = c, true
			break
		}
	}
	if !found {
		return auth.CredentialGrant{}, apperr.ErrInvalidCredential
	}
	if match.Expired(s.now()) {
		return auth.CredentialGrant{}, apperr.ErrCredentialExpired
	}
	if !match.Active {
		return auth.CredentialGrant{}, apperr.ErrCredentialInactive
	}
	return auth.CredentialGrant{
		CredentialID: match.ID,
		PrincipalID:  match.PrincipalID,
		Permissions:  match.Permissions,
	}, nil
}

// owned loads credentialID and checks it belongs to principalID. A foreign
// credential is forbidden for rollover and reported missing otherwise.
func (s *Service) owned(ctx context.Context, principalID, credentialID string, forbidForeign bool) (Credential, error) {
	c, err := s.repo.FindByID(ctx, credentialID)
	if err != nil {
		return Credential{}, err
	}
	if c.PrincipalID != principalID {
		if forbidForeign {
			return Credential{}, &apperr.Error{Kind: apperr.KindForbidden, Message: "API key belongs to another user"}
		}
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (s *Service) issue(ctx context.Context, tx Tx, principalID, name string, perms permission.Set, ttl time.Duration) (Issued, error) {
	now := s.now()
	active, err := tx.CountActive(ctx, principalID, now)
	if err != nil {
		return Issued{}, err
	}
	if active >= MaxActive {
		return Issued{}, apperr.LimitExceeded("maximum of %d active API keys allowed", MaxActive)
	}

	secret, lookup, err := s.hasher.Generate()
	if err != nil {
		return Issued{}, err
	}
	c := Credential{
		ID:           uuid.NewString(),
		PrincipalID:  principalID,
		Name:         name,
		Hash:         s.hasher.Hash(secret),
		LookupPrefix: lookup,
		Permissions:  perms,
		ExpiresAt:    now.Add(ttl),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Insert(ctx, c); err != nil {
		return Issued{}, err
	}
	return Issued{ID: c.ID, Secret: secret, ExpiresAt: c.ExpiresAt}, nil
}
