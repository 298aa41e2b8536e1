package wallet

import (
	"context"
	"log/slog"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/gateway"
	"github.com/congo-pay/walletd/internal/identity"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/logging"
)

// Directory resolves the principal a deposit is collected from.
type Directory interface {
	Get(ctx context.Context, id string) (identity.Principal, error)
}

// Service coordinates the ledger engine with the payment gateway.
type Service struct {
	engine   *ledger.Engine
	gateway  gateway.Gateway
	people   Directory
	currency string
	logger   *slog.Logger
}

// NewService builds a wallet service.
func NewService(engine *ledger.Engine, gw gateway.Gateway, people Directory, currency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{engine: engine, gateway: gw, people: people, currency: currency, logger: logger}
}

// Deposit records a pending deposit and asks the gateway for a checkout. If
// the gateway refuses, the pending entry is discarded.
func (s *Service) Deposit(ctx context.Context, principalID string, amount int64) (ledger.Entry, error) {
	p, err := s.people.Get(ctx, principalID)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry, err := s.engine.InitiateDeposit(ctx, principalID, amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	authz, err := s.gateway.Initialize(ctx, gateway.Checkout{
		Reference: entry.Reference,
		Amount:    amount,
		Email:     p.Email,
		Currency:  s.currency,
	})
	if err != nil {
		if derr := s.engine.AbandonDeposit(context.WithoutCancel(ctx), entry.Reference); derr != nil {
			s.logger.Error("abandon deposit", "reference", entry.Reference, "error", derr)
		}
		return ledger.Entry{}, apperr.External("payment initiation failed", err)
	}
	if err := s.engine.AttachAuthorization(ctx, entry.Reference, authz.URL); err != nil {
		return ledger.Entry{}, err
	}
	entry.AuthorizationURL = authz.URL
	return entry, nil
}

// DepositStatus returns the caller's deposit. It never credits.
func (s *Service) DepositStatus(ctx context.Context, principalID, reference string) (ledger.Entry, error) {
	return s.engine.DepositStatus(ctx, principalID, reference)
}

// VerifyDeposit returns the caller's deposit along with the gateway's view
// of it. It never credits; settlement only happens through the webhook.
func (s *Service) VerifyDeposit(ctx context.Context, principalID, reference string) (ledger.Entry, gateway.Verification, error) {
	entry, err := s.engine.DepositStatus(ctx, principalID, reference)
	if err != nil {
		return ledger.Entry{}, gateway.Verification{}, err
	}
	v, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return ledger.Entry{}, gateway.Verification{}, apperr.External("payment verification failed", err)
	}
	return entry, v, nil
}

func (s *Service) Balance(ctx context.Context, principalID string) (ledger.Account, error) {
	return s.engine.Balance(ctx, principalID)
}

func (s *Service) Transfer(ctx context.Context, principalID, recipientNumber string, amount int64) (ledger.TransferResult, error) {
	return s.engine.Transfer(ctx, principalID, recipientNumber, amount)
}

func (s *Service) Transactions(ctx context.Context, principalID string) ([]ledger.Entry, error) {
	return s.engine.ListEntries(ctx, principalID)
}

// Currency is the ISO code balances are held in.
func (s *Service) Currency() string { return s.currency }
