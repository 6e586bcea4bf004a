package debts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/db"
	"github.com/credinet/credinet/internal/shared"
)

// Repository stores the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, associate_id, source_statement_id, amount, paid_amount, created_at, updated_at`

func scanItem(row pgx.Row) (DebtItem, error) {
	var d DebtItem
	err := row.Scan(&d.ID, &d.AssociateID, &d.SourceStatementID, &d.Amount, &d.PaidAmount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func collect(rows pgx.Rows) ([]DebtItem, error) {
	defer rows.Close()
	var out []DebtItem
	for rows.Next() {
		d, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("debts: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListOpen returns open items in FIFO order.
func (r *Repository) ListOpen(ctx context.Context, associateID int64) ([]DebtItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM debt_items
WHERE associate_id = $1 AND paid_amount < amount ORDER BY created_at, id`, associateID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListItems pages through all items of an associate.
func (r *Repository) ListItems(ctx context.Context, associateID int64, page shared.Page) ([]DebtItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM debt_items
WHERE associate_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`, associateID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockOpen(ctx context.Context, associateID int64) ([]DebtItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM debt_items
WHERE associate_id = $1 AND paid_amount < amount ORDER BY created_at, id FOR UPDATE`, associateID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (t *txRepository) ApplyAllocation(ctx context.Context, item DebtItem, amount decimal.Decimal, actorID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE debt_items SET paid_amount = paid_amount + $3::numeric, updated_at = NOW()
WHERE id = $1 AND paid_amount = $2::numeric`, item.ID, item.PaidAmount.String(), amount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrentUpdate("debt item", item.ID)
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO debt_payments (associate_id, debt_item_id, amount, recorded_by)
VALUES ($1, $2, $3::numeric, $4)`, item.AssociateID, item.ID, amount.String(), actorID)
	return err
}

// Querier is satisfied by pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AddFromStatement records a statement balance as debt inside the caller's transaction.
// A second call for the same statement returns the existing item.
func AddFromStatement(ctx context.Context, q Querier, associateID, statementID int64, amount decimal.Decimal) (DebtItem, bool, error) {
	if !amount.IsPositive() {
		return DebtItem{}, false, shared.Invalid("amount", "must be greater than zero")
	}
	item, err := scanItem(q.QueryRow(ctx, `INSERT INTO debt_items (associate_id, source_statement_id, amount)
VALUES ($1, $2, $3::numeric)
ON CONFLICT (source_statement_id) DO NOTHING
RETURNING `+itemColumns, associateID, statementID, amount.String()))
	if err == nil {
		return item, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return DebtItem{}, false, err
	}
	item, err = scanItem(q.QueryRow(ctx, `SELECT `+itemColumns+` FROM debt_items WHERE source_statement_id = $1`, statementID))
	return item, false, err
}
