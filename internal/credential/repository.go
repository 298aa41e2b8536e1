package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/permission"
)

var (
	// ErrNotFound is returned when no credential matches an id.
	ErrNotFound = apperr.NotFound("API key")

	// ErrDuplicateHash indicates a generated secret collided with a stored one.
	ErrDuplicateHash = errors.New("credential: duplicate hash")
)

// Repository persists service credentials.
type Repository interface {
	FindByID(ctx context.Context, id string) (Credential, error)
	FindByLookupPrefix(ctx context.Context, prefix string) ([]Credential, error)
	ListByPrincipal(ctx context.Context, principalID string) ([]Credential, error)
	// WithPrincipal runs fn in one atomic unit while holding an exclusive lock
	// scoped to principalID, so limit checks cannot race each other.
	WithPrincipal(ctx context.Context, principalID string, fn func(tx Tx) error) error
}

// Tx is the locked view handed to WithPrincipal callbacks.
type Tx interface {
	CountActive(ctx context.Context, principalID string, now time.Time) (int, error)
	// Lock takes a row lock on the credential with id.
	Lock(ctx context.Context, id string) (Credential, error)
	Insert(ctx context.Context, c Credential) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed credential repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const credentialColumns = `id, principal_id, name, hash, lookup_prefix, permissions, expires_at, active, created_at, updated_at`

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Credential, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Credential{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM service_credentials WHERE id = $1`, uid)
	return scanCredential(row)
}

func (r *PostgresRepository) FindByLookupPrefix(ctx context.Context, prefix string) ([]Credential, error) {
	return r.query(ctx, `SELECT `+credentialColumns+` FROM service_credentials WHERE lookup_prefix = $1`, prefix)
}

func (r *PostgresRepository) ListByPrincipal(ctx context.Context, principalID string) ([]Credential, error) {
	uid, err := uuid.Parse(principalID)
	if err != nil {
		return nil, nil
	}
	return r.query(ctx, `SELECT `+credentialColumns+` FROM service_credentials
        WHERE principal_id = $1 ORDER BY created_at DESC`, uid)
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Credential, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) WithPrincipal(ctx context.Context, principalID string, fn func(tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "credentials:"+principalID); err != nil {
		return fmt.Errorf("credential: lock principal: %w", err)
	}
	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) CountActive(ctx context.Context, principalID string, now time.Time) (int, error) {
	uid, err := uuid.Parse(principalID)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.tx.QueryRow(ctx, `SELECT count(*) FROM service_credentials
        WHERE principal_id = $1 AND active AND expires_at > $2`, uid, now).Scan(&n)
	return n, err
}

func (t *postgresTx) Lock(ctx context.Context, id string) (Credential, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Credential{}, ErrNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+credentialColumns+` FROM service_credentials WHERE id = $1 FOR UPDATE`, uid)
	return scanCredential(row)
}

func (t *postgresTx) Insert(ctx context.Context, c Credential) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return err
	}
	principalID, err := uuid.Parse(c.PrincipalID)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO service_credentials (`+credentialColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, principalID, c.Name, c.Hash, c.LookupPrefix, c.Permissions.Strings(), c.ExpiresAt, c.Active, c.CreatedAt, c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateHash
	}
	return err
}

func (t *postgresTx) Deactivate(ctx context.Context, id string, at time.Time) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE service_credentials SET active = FALSE, updated_at = $2 WHERE id = $1`, uid, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var (
		c               Credential
		id, principalID uuid.UUID
		perms           []string
	)
	err := row.Scan(&id, &principalID, &c.Name, &c.Hash, &c.LookupPrefix, &perms, &c.ExpiresAt, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, err
	}
	set, err := permission.Parse(perms)
	if err != nil {
		return Credential{}, fmt.Errorf("credential %s: stored permissions: %w", id, err)
	}
	c.ID = id.String()
	c.PrincipalID = principalID.String()
	c.Permissions = set
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
