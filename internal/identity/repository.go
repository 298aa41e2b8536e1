package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/ledger"
)

var (
	// ErrNotFound is returned when no principal matches a lookup.
	ErrNotFound = apperr.NotFound("user")

	// ErrExists indicates a principal with the same external id already exists.
	ErrExists = errors.New("identity: principal exists")
)

// Repository persists principals.
type Repository interface {
	FindByID(ctx context.Context, id string) (Principal, error)
	FindByExternalID(ctx context.Context, externalID string) (Principal, error)
	// CreateWithAccount stores the principal and its wallet account in one
	// atomic unit. A duplicate account number surfaces as
	// ledger.ErrDuplicateReference.
	CreateWithAccount(ctx context.Context, p Principal, account ledger.Account) error
	UpdateProfile(ctx context.Context, p Principal) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const principalColumns = `id, external_id, email, name, picture, created_at, updated_at`

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Principal, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Principal{}, ErrNotFound
	}
	return scanPrincipal(r.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, uid))
}

func (r *PostgresRepository) FindByExternalID(ctx context.Context, externalID string) (Principal, error) {
	return scanPrincipal(r.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE external_id = $1`, externalID))
}

func (r *PostgresRepository) CreateWithAccount(ctx context.Context, p Principal, account ledger.Account) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	_, err = tx.Exec(ctx, `INSERT INTO principals (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, p.ExternalID, p.Email, p.Name, p.Picture, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("identity: insert principal: %w", err)
	}
	if err := ledger.CreateAccountTx(ctx, tx, account); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, p Principal) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE principals SET email = $2, name = $3, picture = $4, updated_at = $5 WHERE id = $1`,
		id, p.Email, p.Name, p.Picture, p.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPrincipal(row pgx.Row) (Principal, error) {
	var (
		p  Principal
		id uuid.UUID
	)
	if err := row.Scan(&id, &p.ExternalID, &p.Email, &p.Name, &p.Picture, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, ErrNotFound
		}
		return Principal{}, err
	}
	p.ID = id.String()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
