package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/reference"
)

const numberAttempts = 5

// AccountReader loads a principal's wallet account.
type AccountReader interface {
	AccountByPrincipal(ctx context.Context, principalID string) (ledger.Account, error)
}

// Service manages the principal lifecycle.
type Service struct {
	repo     Repository
	accounts AccountReader
	refs     reference.Generator
	now      func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, accounts AccountReader) *Service {
	return &Service{repo: repo, accounts: accounts, now: func() time.Time { return time.Now().UTC() }}
}

// Provision signs in the owner of profile. A first sign-in creates the
// principal and its wallet account together; later sign-ins refresh the
// stored profile and return the existing account.
func (s *Service) Provision(ctx context.Context, profile Profile) (Principal, ledger.Account, error) {
	if strings.TrimSpace(profile.ExternalID) == "" {
		return Principal{}, ledger.Account{}, apperr.Validation("identity provider returned no user id")
	}
	if strings.TrimSpace(profile.Email) == "" {
		return Principal{}, ledger.Account{}, apperr.Validation("identity provider returned no email")
	}

	existing, err := s.repo.FindByExternalID(ctx, profile.ExternalID)
	switch {
	case err == nil:
		return s.refresh(ctx, existing, profile)
	case !errors.Is(err, ErrNotFound):
		return Principal{}, ledger.Account{}, err
	}

	now := s.now()
	p := Principal{
		ID:         uuid.NewString(),
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Name:       profile.Name,
		Picture:    profile.Picture,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for attempt := 0; attempt < numberAttempts; attempt++ {
		number, err := s.refs.AccountNumber(s.now())
		if err != nil {
			return Principal{}, ledger.Account{}, err
		}
		account := ledger.Account{
			ID:          uuid.NewString(),
			PrincipalID: p.ID,
			Number:      number,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = s.repo.CreateWithAccount(ctx, p, account)
		switch {
		case err == nil:
			return p, account, nil
		case errors.Is(err, ErrExists):
			// Lost a race with a concurrent first sign-in.
			existing, err := s.repo.FindByExternalID(ctx, profile.ExternalID)
			if err != nil {
				return Principal{}, ledger.Account{}, err
			}
			return s.refresh(ctx, existing, profile)
		case errors.Is(err, ledger.ErrDuplicateReference):
			continue
		default:
			return Principal{}, ledger.Account{}, err
		}
	}
	return Principal{}, ledger.Account{}, errors.New("identity: could not allocate a unique account number")
}

func (s *Service) refresh(ctx context.Context, p Principal, profile Profile) (Principal, ledger.Account, error) {
	if p.Email != profile.Email || p.Name != profile.Name || p.Picture != profile.Picture {
		p.Email, p.Name, p.Picture = profile.Email, profile.Name, profile.Picture
		p.UpdatedAt = s.now()
		if err := s.repo.UpdateProfile(ctx, p); err != nil {
			return Principal{}, ledger.Account{}, err
		}
	}
	account, err := s.accounts.AccountByPrincipal(ctx, p.ID)
	if err != nil {
		return Principal{}, ledger.Account{}, err
	}
	return p, account, nil
}

// Get returns the principal with id.
func (s *Service) Get(ctx context.Context, id string) (Principal, error) {
	return s.repo.FindByID(ctx, id)
}

// Exists reports whether a principal with id is known.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
