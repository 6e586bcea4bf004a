package loans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/platform/db"
	"github.com/credinet/credinet/internal/shared"
)

// Repository persists loans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const loanColumns = `id, client_id, associate_id, amount, term_biweeks, profile_code, custom_rate,
interest_rate, commission_rate, status, rejection_reason, notes, approved_by, approved_at,
rejected_by, rejected_at, created_by, created_at, updated_at`

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.ClientID, &l.AssociateID, &l.Amount, &l.TermBiweeks, &l.ProfileCode, &l.CustomRate,
		&l.InterestRate, &l.CommissionRate, &l.Status, &l.RejectionReason, &l.Notes, &l.ApprovedBy, &l.ApprovedAt,
		&l.RejectedBy, &l.RejectedAt, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("loans: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get loads one loan.
func (r *Repository) Get(ctx context.Context, id int64) (Loan, error) {
	l, err := scanLoan(r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, shared.NotFound("loan", id)
	}
	return l, err
}

// List applies the filter and returns loans newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Loan, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssociateID > 0 {
		args = append(args, filter.AssociateID)
		where = append(where, fmt.Sprintf("associate_id = $%d", len(args)))
	}
	if filter.ClientID > 0 {
		args = append(args, filter.ClientID)
		where = append(where, fmt.Sprintf("client_id = $%d", len(args)))
	}
	query := `SELECT ` + loanColumns + ` FROM loans`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	page := shared.NewPage(filter.Page.Limit, filter.Page.Offset)
	args = append(args, page.Limit, page.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListPayments returns the loan's installments.
func (r *Repository) ListPayments(ctx context.Context, loanID int64) ([]payments.Payment, error) {
	return payments.NewRepository(r.pool).ListByLoan(ctx, loanID)
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) Insert(ctx context.Context, in CreateLoanInput, status Status) (Loan, error) {
	return scanLoan(t.tx.QueryRow(ctx, `INSERT INTO loans
(client_id, associate_id, amount, term_biweeks, profile_code, custom_rate, status, notes, created_by)
VALUES ($1, $2, $3::numeric, $4, $5, $6::numeric, $7, $8, $9)
RETURNING `+loanColumns,
		in.ClientID, in.AssociateID, in.Amount.String(), in.TermBiweeks, in.ProfileCode,
		decimalArg(in.CustomRate), string(status), in.Notes, in.CreatedBy))
}

func (t *txRepository) Lock(ctx context.Context, id int64) (Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, shared.NotFound("loan", id)
	}
	return l, err
}

func (t *txRepository) Update(ctx context.Context, prev, next Loan) error {
	tag, err := t.tx.Exec(ctx, `UPDATE loans SET
status = $3, interest_rate = $4::numeric, commission_rate = $5::numeric, rejection_reason = $6, notes = $7,
approved_by = $8, approved_at = $9, rejected_by = $10, rejected_at = $11, updated_at = $12
WHERE id = $1 AND status = $2`,
		prev.ID, string(prev.Status), string(next.Status), decimalArg(next.InterestRate), decimalArg(next.CommissionRate),
		next.RejectionReason, next.Notes, next.ApprovedBy, next.ApprovedAt, next.RejectedBy, next.RejectedAt, next.UpdatedAt)
	if err != nil {
		if shared.IsSerializationFailure(err) {
			return shared.ConcurrentUpdate("loan", prev.ID)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrentUpdate("loan", prev.ID)
	}
	return nil
}

func (t *txRepository) Delete(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE loan_id = $1`, id); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	return err
}

func (t *txRepository) Associate(ctx context.Context, id int64) (associates.Associate, error) {
	return associates.LockForUpdate(ctx, t.tx, id)
}

func (t *txRepository) ReserveCredit(ctx context.Context, associateID int64, amount decimal.Decimal) error {
	return associates.Reserve(ctx, t.tx, associateID, amount)
}

func (t *txRepository) ReleaseCredit(ctx context.Context, associateID int64, amount decimal.Decimal) error {
	return associates.Release(ctx, t.tx, associateID, amount)
}

func (t *txRepository) InsertPayments(ctx context.Context, rows []payments.Payment) error {
	batch := &pgx.Batch{}
	for _, p := range rows {
		batch.Queue(`INSERT INTO payments
(loan_id, payment_number, payment_due_date, expected_amount, principal_amount, interest_amount,
 commission_amount, associate_payment, balance_after, amount_paid, status)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, 0, $10)`,
			p.LoanID, p.Number, p.DueDate, p.ExpectedAmount.String(), p.Principal.String(), p.Interest.String(),
			p.Commission.String(), p.AssociatePayment.String(), p.BalanceAfter.String(), string(p.Status))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepository) CancelOpenPayments(ctx context.Context, loanID int64) (int, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET status = $2, updated_at = NOW()
WHERE loan_id = $1 AND status = ANY($3)`, loanID, string(payments.StatusCancelled), payments.CollectableCodes())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *txRepository) HasStatementPayments(ctx context.Context, loanID int64) (bool, error) {
	var billed bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE loan_id = $1 AND statement_id IS NOT NULL)`, loanID).Scan(&billed)
	return billed, err
}

func (t *txRepository) OpenPaymentCount(ctx context.Context, loanID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE loan_id = $1 AND status = ANY($2)`, loanID, payments.CollectableCodes()).Scan(&n)
	return n, err
}
