package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore persists accounts and ledger entries in PostgreSQL. Balance
// changes go through InTx, which wraps a single pgx transaction and takes
// SELECT ... FOR UPDATE row locks.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by both the pool and a pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const accountColumns = `id, principal_id, number, balance, created_at, updated_at`

const entryColumns = `id, account_id, principal_id, kind, amount, status, reference,
        group_ref, description, authorization_url, settled_at, created_at, updated_at`

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	return CreateAccountTx(ctx, s.db, account)
}

// CreateAccountTx inserts account using db, which may be a transaction owned
// by the caller. Principal provisioning uses it to create the principal and
// its account in one unit.
func CreateAccountTx(ctx context.Context, db execer, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return fmt.Errorf("ledger: account id: %w", err)
	}
	principalID, err := uuid.Parse(account.PrincipalID)
	if err != nil {
		return fmt.Errorf("ledger: principal id: %w", err)
	}
	_, err = db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, principalID, account.Number, account.Balance, account.CreatedAt, account.UpdatedAt)
	return mapWriteErr(err)
}

func (s *PostgresStore) AccountByPrincipal(ctx context.Context, principalID string) (Account, error) {
	id, err := uuid.Parse(principalID)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE principal_id = $1`, id)
	return scanAccount(row)
}

func (s *PostgresStore) AccountByNumber(ctx context.Context, number string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number)
	return scanAccount(row)
}

func (s *PostgresStore) InsertEntry(ctx context.Context, entry Entry) error {
	return insertEntry(ctx, s.db, entry)
}

func (s *PostgresStore) EntryByReference(ctx context.Context, reference string) (Entry, error) {
	row := s.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reference = $1`, reference)
	return scanEntry(row)
}

func (s *PostgresStore) EntriesByAccount(ctx context.Context, accountID string) ([]Entry, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE account_id = $1 ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) UpdateAuthorization(ctx context.Context, reference, url string) error {
	tag, err := s.db.Exec(ctx, `UPDATE ledger_entries SET authorization_url = $2, updated_at = now()
        WHERE reference = $1`, reference, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *PostgresStore) DiscardPending(ctx context.Context, reference string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM ledger_entries WHERE reference = $1 AND status = $2`,
		reference, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func (s *PostgresStore) StalePending(ctx context.Context, kind Kind, before time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT reference FROM ledger_entries
        WHERE kind = $1 AND status = $2 AND created_at < $3
        ORDER BY created_at ASC LIMIT $4`, string(kind), string(StatusPending), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockEntry(ctx context.Context, reference string) (Entry, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reference = $1 FOR UPDATE`, reference)
	return scanEntry(row)
}

func (t *postgresTx) LockAccounts(ctx context.Context, ids ...string) (map[string]Account, error) {
	out := make(map[string]Account, len(ids))
	for _, id := range lockOrder(ids) {
		uid, err := uuid.Parse(id)
		if err != nil {
			return nil, ErrAccountNotFound
		}
		row := t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, uid)
		acct, err := scanAccount(row)
		if err != nil {
			return nil, err
		}
		out[id] = acct
	}
	return out, nil
}

func (t *postgresTx) SetBalance(ctx context.Context, accountID string, balance int64, at time.Time) error {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return ErrAccountNotFound
	}
	tag, err := t.tx.Exec(ctx, `UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`, id, balance, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *postgresTx) InsertEntry(ctx context.Context, entry Entry) error {
	return insertEntry(ctx, t.tx, entry)
}

func (t *postgresTx) SettleEntry(ctx context.Context, reference string, status Status, settledAt *time.Time, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE ledger_entries SET status = $2, settled_at = $3, updated_at = $4
        WHERE reference = $1 AND status = $5`, reference, string(status), settledAt, at, string(StatusPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

func insertEntry(ctx context.Context, db execer, e Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("ledger: entry id: %w", err)
	}
	accountID, err := uuid.Parse(e.AccountID)
	if err != nil {
		return ErrAccountNotFound
	}
	principalID, err := uuid.Parse(e.PrincipalID)
	if err != nil {
		return fmt.Errorf("ledger: principal id: %w", err)
	}
	_, err = db.Exec(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, accountID, principalID, string(e.Kind), e.Amount, string(e.Status), e.Reference,
		nullable(e.Group), e.Description, nullable(e.AuthorizationURL), e.SettledAt, e.CreatedAt, e.UpdatedAt)
	return mapWriteErr(err)
}

func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateReference
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a               Account
		id, principalID uuid.UUID
	)
	if err := row.Scan(&id, &principalID, &a.Number, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	a.ID = id.String()
	a.PrincipalID = principalID.String()
	return a, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e                          Entry
		id, accountID, principalID uuid.UUID
		kind, status               string
		group, authorizationURL    *string
	)
	err := row.Scan(&id, &accountID, &principalID, &kind, &e.Amount, &status, &e.Reference,
		&group, &e.Description, &authorizationURL, &e.SettledAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	e.ID = id.String()
	e.AccountID = accountID.String()
	e.PrincipalID = principalID.String()
	e.Kind = Kind(kind)
	e.Status = Status(status)
	if group != nil {
		e.Group = *group
	}
	if authorizationURL != nil {
		e.AuthorizationURL = *authorizationURL
	}
	return e, nil
}

var _ Store = (*PostgresStore)(nil)
