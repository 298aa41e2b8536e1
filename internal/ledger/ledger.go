package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/congo-pay/walletd/internal/apperr"
)

var (
	// ErrAccountNotFound is returned when no wallet account matches a lookup.
	ErrAccountNotFound = apperr.NotFound("wallet")

	// ErrEntryNotFound is returned when no ledger entry matches a reference.
	ErrEntryNotFound = apperr.NotFound("transaction")

	// ErrDuplicateReference indicates a reference or account number collided
	// with an existing row.
	ErrDuplicateReference = errors.New("ledger: duplicate reference")

	// ErrNotPending is returned when settling an entry whose status already
	// left pending.
	ErrNotPending = errors.New("ledger: entry is not pending")
)

// Kind categorizes a ledger entry.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindTransfer Kind = "transfer"
)

// Status is the settlement state of a ledger entry. It only ever moves from
// pending to success or from pending to failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Account holds a principal's balance in minor currency units.
type Account struct {
	ID          string
	PrincipalID string
	Number      string
	Balance     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Entry is one append-only movement against an account. Amount is signed:
// transfer debits are negative.
type Entry struct {
	ID               string
	AccountID        string
	PrincipalID      string
	Kind             Kind
	Amount           int64
	Status           Status
	Reference        string
	Group            string
	Description      string
	AuthorizationURL string
	SettledAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store persists accounts and entries. Balance mutations only happen through
// a Tx obtained from InTx.
type Store interface {
	CreateAccount(ctx context.Context, account Account) error
	AccountByPrincipal(ctx context.Context, principalID string) (Account, error)
	AccountByNumber(ctx context.Context, number string) (Account, error)

	InsertEntry(ctx context.Context, entry Entry) error
	EntryByReference(ctx context.Context, reference string) (Entry, error)
	EntriesByAccount(ctx context.Context, accountID string) ([]Entry, error)
	UpdateAuthorization(ctx context.Context, reference, url string) error
	// DiscardPending removes an entry that never left pending. It is only used
	// to undo a deposit whose gateway initiation failed.
	DiscardPending(ctx context.Context, reference string) error
	StalePending(ctx context.Context, kind Kind, before time.Time, limit int) ([]string, error)

	// InTx runs fn inside one atomic unit. Every row lock taken through the
	// Tx is held until fn returns; a non-nil error or a cancelled context
	// discards everything fn did.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the exclusive-access view of the store used by the engine.
type Tx interface {
	// LockEntry takes an exclusive lock on the entry with reference.
	LockEntry(ctx context.Context, reference string) (Entry, error)
	// LockAccounts takes exclusive locks on the accounts in ascending id
	// order, whatever order ids are passed in.
	LockAccounts(ctx context.Context, ids ...string) (map[string]Account, error)
	SetBalance(ctx context.Context, accountID string, balance int64, at time.Time) error
	InsertEntry(ctx context.Context, entry Entry) error
	SettleEntry(ctx context.Context, reference string, status Status, settledAt *time.Time, at time.Time) error
}

// lockOrder returns ids de-duplicated and sorted ascending. Every multi-row
// lock in the package goes through it, so two transfers between the same pair
// of accounts always contend on the same first row.
func lockOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
