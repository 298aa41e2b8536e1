package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/metrics"
	"github.com/congo-pay/walletd/internal/notification"
	"github.com/congo-pay/walletd/internal/reference"
)

const (
	depositDescription = "Wallet deposit"

	outcomeApplied  = "applied"
	outcomeNoop     = "noop"
	outcomeRejected = "rejected"
)

// Engine is the only writer of account balances. Every mutation runs inside a
// single Store transaction holding row locks on the touched accounts.
type Engine struct {
	store    Store
	refs     reference.Generator
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier publishes ledger events after commit.
func WithNotifier(n notification.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logging.Discard(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Confirmation is the outcome of settling a deposit. Applied is false when
// the call changed nothing because the entry had already been settled.
type Confirmation struct {
	Entry   Entry
	Applied bool
	Balance int64
}

// TransferResult describes both legs of a committed transfer.
type TransferResult struct {
	Group            string
	Debit            Entry
	Credit           Entry
	SenderBalance    int64
	RecipientBalance int64
}

// InitiateDeposit records a pending deposit for the principal's account. The
// balance is untouched until ConfirmDeposit.
func (e *Engine) InitiateDeposit(ctx context.Context, principalID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, apperr.Validation("amount must be greater than zero")
	}
	acct, err := e.store.AccountByPrincipal(ctx, principalID)
	if err != nil {
		return Entry{}, err
	}
	ref, err := e.refs.Deposit()
	if err != nil {
		return Entry{}, err
	}
	now := e.now()
	entry := Entry{
		ID:          uuid.NewString(),
		AccountID:   acct.ID,
		PrincipalID: principalID,
		Kind:        KindDeposit,
		Amount:      amount,
		Status:      StatusPending,
		Reference:   ref,
		Description: depositDescription,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.InsertEntry(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("ledger: record deposit: %w", err)
	}
	metrics.RecordLedgerOperation("deposit_initiate", outcomeApplied, 0)
	return entry, nil
}

// AttachAuthorization stores the gateway's authorization handle on a deposit.
func (e *Engine) AttachAuthorization(ctx context.Context, reference, url string) error {
	return e.store.UpdateAuthorization(ctx, reference, url)
}

// AbandonDeposit removes a deposit whose gateway initiation failed, so no
// orphan pending record is left behind.
func (e *Engine) AbandonDeposit(ctx context.Context, reference string) error {
	if err := e.store.DiscardPending(ctx, reference); err != nil {
		return fmt.Errorf("ledger: abandon deposit %s: %w", reference, err)
	}
	return nil
}

// ConfirmDeposit credits a pending deposit exactly once. Confirming an entry
// that is already successful is a no-op that still succeeds.
func (e *Engine) ConfirmDeposit(ctx context.Context, reference string) (Confirmation, error) {
	var out Confirmation
	err := e.store.InTx(ctx, func(tx Tx) error {
		entry, err := tx.LockEntry(ctx, reference)
		if err != nil {
			return err
		}
		if entry.Kind != KindDeposit {
			return apperr.Validation("reference %s is not a deposit", reference)
		}
		switch entry.Status {
		case StatusSuccess:
			out = Confirmation{Entry: entry}
			return nil
		case StatusFailed:
			return apperr.Validation("deposit %s has already failed", reference)
		}

		accounts, err := tx.LockAccounts(ctx, entry.AccountID)
		if err != nil {
			return err
		}
		acct := accounts[entry.AccountID]
		if acct.Balance > math.MaxInt64-entry.Amount {
			return apperr.Validation("deposit would overflow the wallet balance")
		}

		now := e.now()
		balance := acct.Balance + entry.Amount
		if err := tx.SetBalance(ctx, acct.ID, balance, now); err != nil {
			return err
		}
		if err := tx.SettleEntry(ctx, reference, StatusSuccess, &now, now); err != nil {
			return err
		}
		entry.Status = StatusSuccess
		entry.SettledAt = &now
		entry.UpdatedAt = now
		out = Confirmation{Entry: entry, Applied: true, Balance: balance}
		return nil
	})
	if err != nil {
		metrics.RecordLedgerOperation("deposit_confirm", outcomeRejected, 0)
		return Confirmation{}, err
	}

	if !out.Applied {
		metrics.RecordLedgerOperation("deposit_confirm", outcomeNoop, 0)
		return out, nil
	}
	metrics.RecordLedgerOperation("deposit_confirm", outcomeApplied, out.Entry.Amount)
	e.logger.Info("deposit credited", "reference", reference, "account_id", out.Entry.AccountID, "amount", out.Entry.Amount)
	e.notify(ctx, notification.Message{
		Kind:        notification.KindDepositSucceeded,
		Destination: out.Entry.PrincipalID,
		Reference:   reference,
		Amount:      out.Entry.Amount,
		OccurredAt:  *out.Entry.SettledAt,
	})
	return out, nil
}

// FailDeposit marks a pending deposit failed. A deposit that already left
// pending is reported back unchanged; a successful deposit is never reversed.
func (e *Engine) FailDeposit(ctx context.Context, reference string) (Confirmation, error) {
	var out Confirmation
	err := e.store.InTx(ctx, func(tx Tx) error {
		entry, err := tx.LockEntry(ctx, reference)
		if err != nil {
			return err
		}
		if entry.Kind != KindDeposit {
			return apperr.Validation("reference %s is not a deposit", reference)
		}
		if entry.Status != StatusPending {
			out = Confirmation{Entry: entry}
			return nil
		}
		now := e.now()
		if err := tx.SettleEntry(ctx, reference, StatusFailed, nil, now); err != nil {
			return err
		}
		entry.Status = StatusFailed
		entry.UpdatedAt = now
		out = Confirmation{Entry: entry, Applied: true}
		return nil
	})
	if err != nil {
		metrics.RecordLedgerOperation("deposit_fail", outcomeRejected, 0)
		return Confirmation{}, err
	}
	if out.Applied {
		metrics.RecordLedgerOperation("deposit_fail", outcomeApplied, 0)
	} else {
		metrics.RecordLedgerOperation("deposit_fail", outcomeNoop, 0)
	}
	return out, nil
}

// Transfer moves amount from the principal's account to the account with
// recipientNumber. Both balance changes and both entries commit together or
// not at all.
func (e *Engine) Transfer(ctx context.Context, principalID, recipientNumber string, amount int64) (TransferResult, error) {
	if amount <= 0 {
		return TransferResult{}, apperr.Validation("amount must be greater than zero")
	}
	sender, err := e.store.AccountByPrincipal(ctx, principalID)
	if err != nil {
		return TransferResult{}, err
	}
	recipient, err := e.store.AccountByNumber(ctx, recipientNumber)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return TransferResult{}, apperr.NotFound("recipient wallet")
		}
		return TransferResult{}, err
	}
	if sender.ID == recipient.ID {
		return TransferResult{}, apperr.ErrSameAccount
	}

	group, err := e.refs.Group()
	if err != nil {
		return TransferResult{}, err
	}
	debitRef, err := e.refs.Transfer()
	if err != nil {
		return TransferResult{}, err
	}
	creditRef, err := e.refs.Transfer()
	if err != nil {
		return TransferResult{}, err
	}

	var out TransferResult
	err = e.store.InTx(ctx, func(tx Tx) error {
		accounts, err := tx.LockAccounts(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := accounts[sender.ID], accounts[recipient.ID]
		if from.Balance < amount {
			return apperr.ErrInsufficientFunds
		}
		if to.Balance > math.MaxInt64-amount {
			return apperr.Validation("transfer would overflow the recipient balance")
		}

		now := e.now()
		fromBalance, toBalance := from.Balance-amount, to.Balance+amount
		if err := tx.SetBalance(ctx, from.ID, fromBalance, now); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, to.ID, toBalance, now); err != nil {
			return err
		}

		debit := Entry{
			ID:          uuid.NewString(),
			AccountID:   from.ID,
			PrincipalID: from.PrincipalID,
			Kind:        KindTransfer,
			Amount:      -amount,
			Status:      StatusSuccess,
			Reference:   debitRef,
			Group:       group,
			Description: "Transfer to wallet " + to.Number,
			SettledAt:   &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		credit := Entry{
			ID:          uuid.NewString(),
			AccountID:   to.ID,
			PrincipalID: to.PrincipalID,
			Kind:        KindTransfer,
			Amount:      amount,
			Status:      StatusSuccess,
			Reference:   creditRef,
			Group:       group,
			Description: "Transfer from wallet " + from.Number,
			SettledAt:   &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertEntry(ctx, debit); err != nil {
			return err
		}
		if err := tx.InsertEntry(ctx, credit); err != nil {
			return err
		}
		out = TransferResult{
			Group:            group,
			Debit:            debit,
			Credit:           credit,
			SenderBalance:    fromBalance,
			RecipientBalance: toBalance,
		}
		return nil
	})
	if err != nil {
		metrics.RecordLedgerOperation("transfer", outcomeRejected, 0)
		return TransferResult{}, err
	}

	metrics.RecordLedgerOperation("transfer", outcomeApplied, amount)
	e.logger.Info("transfer committed", "group", group, "from_account", sender.ID, "to_account", recipient.ID, "amount", amount)
	e.notify(ctx, notification.Message{
		Kind:        notification.KindTransferCompleted,
		Destination: recipient.PrincipalID,
		Reference:   group,
		Amount:      amount,
		Body:        fmt.Sprintf("received %d from wallet %s", amount, sender.Number),
		OccurredAt:  out.Credit.CreatedAt,
	})
	return out, nil
}

// Balance returns the principal's account.
func (e *Engine) Balance(ctx context.Context, principalID string) (Account, error) {
	return e.store.AccountByPrincipal(ctx, principalID)
}

// ListEntries returns the principal's entries, most recent first.
func (e *Engine) ListEntries(ctx context.Context, principalID string) ([]Entry, error) {
	acct, err := e.store.AccountByPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.EntriesByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// GetEntry returns the entry with reference if it belongs to the principal's
// account. Entries owned by anyone else are reported as not found.
func (e *Engine) GetEntry(ctx context.Context, principalID, reference string) (Entry, error) {
	acct, err := e.store.AccountByPrincipal(ctx, principalID)
	if err != nil {
		return Entry{}, err
	}
	entry, err := e.store.EntryByReference(ctx, reference)
	if err != nil {
		return Entry{}, err
	}
	if entry.AccountID != acct.ID {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// DepositStatus is GetEntry restricted to deposits.
func (e *Engine) DepositStatus(ctx context.Context, principalID, reference string) (Entry, error) {
	entry, err := e.GetEntry(ctx, principalID, reference)
	if err != nil {
		return Entry{}, err
	}
	if entry.Kind != KindDeposit {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

// Settlement is the payment processor's verdict on a deposit.
type Settlement int

const (
	// SettlementOpen means the processor has not finished with the deposit,
	// or could not be asked.
	SettlementOpen Settlement = iota
	SettlementSucceeded
	SettlementFailed
)

// SettlementChecker asks the payment processor how a deposit ended.
type SettlementChecker interface {
	Settlement(ctx context.Context, reference string) (Settlement, error)
}

// Reconciliation counts what one stale-deposit pass did.
type Reconciliation struct {
	Confirmed int
	Failed    int
	Skipped   int
}

// ReconcileStaleDeposits settles up to limit deposits that have been pending
// for longer than olderThan, according to checker. A deposit the processor
// captured is credited through ConfirmDeposit; one it reports as failed is
// failed; anything else, including a checker error, stays pending for the
// next pass. A deposit is never failed without the processor saying so.
func (e *Engine) ReconcileStaleDeposits(ctx context.Context, checker SettlementChecker, olderThan time.Duration, limit int) (Reconciliation, error) {
	var out Reconciliation
	if checker == nil {
		return out, errors.New("ledger: reconcile: no settlement checker")
	}
	refs, err := e.store.StalePending(ctx, KindDeposit, e.now().Add(-olderThan), limit)
	if err != nil {
		return out, err
	}
	for _, ref := range refs {
		verdict, err := checker.Settlement(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			e.logger.Warn("settlement check failed", "reference", ref, "error", err)
			out.Skipped++
			continue
		}

		var res Confirmation
		switch verdict {
		case SettlementSucceeded:
			res, err = e.ConfirmDeposit(ctx, ref)
			if err == nil && res.Applied {
				out.Confirmed++
			}
		case SettlementFailed:
			res, err = e.FailDeposit(ctx, ref)
			if err == nil && res.Applied {
				out.Failed++
			}
		default:
			out.Skipped++
		}
		if err != nil {
			return out, fmt.Errorf("ledger: reconcile %s: %w", ref, err)
		}
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, msg notification.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Warn("notification failed", "kind", msg.Kind, "reference", msg.Reference, "error", err)
	}
}
