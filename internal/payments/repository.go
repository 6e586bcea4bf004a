package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/platform/db"
	"github.com/credinet/credinet/internal/shared"
)

// Repository stores installments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Columns selected for every installment read; shared with the loans and statements repositories.
const Columns = `id, loan_id, payment_number, payment_due_date, expected_amount, principal_amount,
interest_amount, commission_amount, associate_payment, balance_after, amount_paid, status,
marked_by, marked_at, notes, statement_id, created_at, updated_at`

// Scan reads a row selected with Columns.
func Scan(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.LoanID, &p.Number, &p.DueDate, &p.ExpectedAmount, &p.Principal,
		&p.Interest, &p.Commission, &p.AssociatePayment, &p.BalanceAfter, &p.AmountPaid, &p.Status,
		&p.MarkedBy, &p.MarkedAt, &p.Notes, &p.StatementID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collect(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("payments: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get loads one installment.
func (r *Repository) Get(ctx context.Context, id int64) (Payment, error) {
	p, err := Scan(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NotFound("payment", id)
	}
	return p, err
}

// ListByLoan returns a loan's installments ordered by number.
func (r *Repository) ListByLoan(ctx context.Context, loanID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+Columns+` FROM payments WHERE loan_id = $1 ORDER BY payment_number`, loanID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListOpenDue returns collectable installments due on or before asOf.
func (r *Repository) ListOpenDue(ctx context.Context, asOf time.Time) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+Columns+` FROM payments
WHERE payment_due_date <= $1 AND status = ANY($2)
ORDER BY loan_id, payment_number`, dateOf(asOf), CollectableCodes())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateStatus moves an installment between derived states if it is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkLoansOverdue flags active loans with delinquent installments.
func (r *Repository) MarkLoansOverdue(ctx context.Context, loanIDs []int64) (int, error) {
	if len(loanIDs) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE loans SET status = 'OVERDUE', updated_at = NOW()
WHERE id = ANY($1) AND status IN ('APPROVED', 'ACTIVE')`, loanIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// RecoverLoans returns overdue loans outside delinquentLoanIDs to APPROVED.
func (r *Repository) RecoverLoans(ctx context.Context, delinquentLoanIDs []int64) (int, error) {
	if delinquentLoanIDs == nil {
		delinquentLoanIDs = []int64{}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE loans SET status = 'APPROVED', updated_at = NOW()
WHERE status = 'OVERDUE' AND NOT (id = ANY($1))`, delinquentLoanIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Querier is satisfied by pgx.Tx.
type Querier = associates.Querier

// LockForUpdate loads an installment inside the caller's transaction.
func LockForUpdate(ctx context.Context, q Querier, id int64) (Payment, error) {
	p, err := Scan(q.QueryRow(ctx, `SELECT `+Columns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.NotFound("payment", id)
	}
	return p, err
}

// SaveCollected persists a collection produced by Apply or ApplyByAssociate and pays the loan
// off when no collectable installment is left. Reports whether the loan was paid off.
func SaveCollected(ctx context.Context, q Querier, prev, next Payment, at time.Time) (bool, error) {
	if err := updateCollected(ctx, q, prev, next); err != nil {
		return false, err
	}
	if !next.Status.Settled() {
		return false, nil
	}
	settled, err := loanSettled(ctx, q, next.LoanID)
	if err != nil || !settled {
		return false, err
	}
	return payOffLoan(ctx, q, next.LoanID, at)
}

func updateCollected(ctx context.Context, q Querier, prev, next Payment) error {
	tag, err := q.Exec(ctx, `UPDATE payments
SET amount_paid = $4::numeric, status = $5, marked_by = $6, marked_at = $7, notes = $8, updated_at = $7
WHERE id = $1 AND status = $2 AND amount_paid = $3::numeric`,
		prev.ID, string(prev.Status), prev.AmountPaid.String(),
		next.AmountPaid.String(), string(next.Status), next.MarkedBy, next.MarkedAt, next.Notes)
	if err != nil {
		if shared.IsSerializationFailure(err) {
			return shared.ConcurrentUpdate("payment", prev.ID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrentUpdate("payment", prev.ID)
	}
	return nil
}

func loanSettled(ctx context.Context, q Querier, loanID int64) (bool, error) {
	var open int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE loan_id = $1 AND status = ANY($2)`,
		loanID, CollectableCodes()).Scan(&open)
	return open == 0, err
}

func payOffLoan(ctx context.Context, q Querier, loanID int64, at time.Time) (bool, error) {
	var (
		associateID *int64
		amount      decimal.Decimal
	)
	err := q.QueryRow(ctx, `UPDATE loans SET status = 'PAID_OFF', updated_at = $2
WHERE id = $1 AND status IN ('APPROVED', 'ACTIVE', 'OVERDUE', 'EARLY_PAYMENT')
RETURNING associate_id, amount`, loanID, at).Scan(&associateID, &amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if associateID != nil {
		if err := associates.Release(ctx, q, *associateID, amount); err != nil {
			return false, err
		}
	}
	return true, nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) LockPayment(ctx context.Context, id int64) (Payment, error) {
	return LockForUpdate(ctx, t.tx, id)
}

func (t *txRepository) UpdateCollected(ctx context.Context, prev, next Payment) error {
	return updateCollected(ctx, t.tx, prev, next)
}

func (t *txRepository) LoanSettled(ctx context.Context, loanID int64) (bool, error) {
	return loanSettled(ctx, t.tx, loanID)
}

func (t *txRepository) PayOffLoan(ctx context.Context, loanID int64, at time.Time) (bool, error) {
	return payOffLoan(ctx, t.tx, loanID, at)
}
