package associates

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

// Querier is satisfied by pgx.Tx and *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists associates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectAssociate = `SELECT id, name, credit_limit, credit_used, is_active, created_at, updated_at FROM associates`

func scanAssociate(row pgx.Row) (Associate, error) {
	var a Associate
	err := row.Scan(&a.ID, &a.Name, &a.CreditLimit, &a.CreditUsed, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Get loads one associate.
func (r *Repository) Get(ctx context.Context, id int64) (Associate, error) {
	a, err := scanAssociate(r.pool.QueryRow(ctx, selectAssociate+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Associate{}, shared.NotFound("associate", id)
	}
	return a, err
}

// List returns associates ordered by id.
func (r *Repository) List(ctx context.Context, page shared.Page) ([]Associate, error) {
	rows, err := r.pool.Query(ctx, selectAssociate+` ORDER BY id LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Associate
	for rows.Next() {
		a, err := scanAssociate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create inserts an associate.
func (r *Repository) Create(ctx context.Context, in CreateInput) (Associate, error) {
	return scanAssociate(r.pool.QueryRow(ctx, `INSERT INTO associates (name, credit_limit)
VALUES ($1, $2::numeric)
RETURNING id, name, credit_limit, credit_used, is_active, created_at, updated_at`, in.Name, in.CreditLimit.String()))
}

// UpdateLimit sets a new credit limit; it cannot drop below credit already in use.
func (r *Repository) UpdateLimit(ctx context.Context, id int64, limit decimal.Decimal) (Associate, error) {
	a, err := scanAssociate(r.pool.QueryRow(ctx, `UPDATE associates SET credit_limit = $2::numeric, updated_at = NOW()
WHERE id = $1 AND credit_used <= $2::numeric
RETURNING id, name, credit_limit, credit_used, is_active, created_at, updated_at`, id, limit.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Associate{}, getErr
		}
		return Associate{}, shared.PreconditionFailed("credit limit below credit in use")
	}
	return a, err
}

// LockForUpdate reads an associate row under FOR UPDATE.
func LockForUpdate(ctx context.Context, q Querier, id int64) (Associate, error) {
	a, err := scanAssociate(q.QueryRow(ctx, selectAssociate+` WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Associate{}, shared.NotFound("associate", id)
	}
	return a, err
}

// Reserve consumes amount from the associate's credit line inside the caller's transaction.
func Reserve(ctx context.Context, q Querier, id int64, amount decimal.Decimal) error {
	a, err := LockForUpdate(ctx, q, id)
	if err != nil {
		return err
	}
	if err := a.CanReserve(amount); err != nil {
		return err
	}
	_, err = q.Exec(ctx, `UPDATE associates SET credit_used = credit_used + $2::numeric, updated_at = NOW() WHERE id = $1`,
		id, amount.String())
	return err
}

// Release returns amount to the credit line, never below zero usage.
func Release(ctx context.Context, q Querier, id int64, amount decimal.Decimal) error {
	tag, err := q.Exec(ctx, `UPDATE associates SET credit_used = GREATEST(credit_used - $2::numeric, 0), updated_at = NOW() WHERE id = $1`,
		id, amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("associate", id)
	}
	return nil
}
