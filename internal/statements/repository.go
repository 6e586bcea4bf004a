package statements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/debts"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/platform/db"
	"github.com/credinet/credinet/internal/shared"
)

// Repository stores statements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const statementColumns = `id, cut_period_id, associate_id, payment_count, expected_collection, commission_earned,
total_commission_owed, late_fee_amount, late_fee_applied, late_fee_notes, paid_amount, status, created_at, updated_at`

// unpaidClause selects statements whose balance exceeds the paid tolerance.
const unpaidClause = `total_commission_owed + late_fee_amount - paid_amount > 0.01`

func scanStatement(row pgx.Row) (Statement, error) {
	var s Statement
	err := row.Scan(&s.ID, &s.CutPeriodID, &s.AssociateID, &s.PaymentCount, &s.ExpectedCollection, &s.CommissionEarned,
		&s.TotalCommissionOwed, &s.LateFeeAmount, &s.LateFeeApplied, &s.LateFeeNotes, &s.PaidAmount, &s.Status,
		&s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func statusCodes(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("statements: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Get loads a statement.
func (r *Repository) Get(ctx context.Context, id int64) (Statement, error) {
	s, err := scanStatement(r.pool.QueryRow(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Statement{}, shared.NotFound("statement", id)
	}
	return s, err
}

// ListByPeriod pages through a period's statements.
func (r *Repository) ListByPeriod(ctx context.Context, periodID int64, page shared.Page) ([]Statement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+statementColumns+` FROM statements
WHERE cut_period_id = $1 ORDER BY associate_id LIMIT $2 OFFSET $3`, periodID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Statement
	for rows.Next() {
		s, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListPayments returns the abonos of a statement in entry order.
func (r *Repository) ListPayments(ctx context.Context, statementID int64) ([]StatementPayment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, statement_id, amount, payment_date, method, reference, notes, recorded_by, payment_id, created_at
FROM statement_payments WHERE statement_id = $1 ORDER BY id`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatementPayment
	for rows.Next() {
		var p StatementPayment
		if err := rows.Scan(&p.ID, &p.StatementID, &p.Amount, &p.PaymentDate, &p.Method, &p.Reference,
			&p.Notes, &p.RecordedBy, &p.PaymentID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AssociatesWithActivity lists associates holding billable installments due in the window.
func (r *Repository) AssociatesWithActivity(ctx context.Context, start, end time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT l.associate_id FROM payments p
JOIN loans l ON l.id = p.loan_id
WHERE p.payment_due_date BETWEEN $1 AND $2 AND p.status <> ALL($3)
ORDER BY l.associate_id`, start, end, unbillable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var unbillable = []string{string(payments.StatusCancelled), string(payments.StatusForgiven)}

// Refs lists statement ids of a period.
func (r *Repository) Refs(ctx context.Context, periodID int64) ([]periods.StatementRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, associate_id FROM statements WHERE cut_period_id = $1 ORDER BY associate_id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []periods.StatementRef
	for rows.Next() {
		var ref periods.StatementRef
		if err := rows.Scan(&ref.ID, &ref.AssociateID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// MoveStatus moves a period's statements between statuses in bulk.
func (r *Repository) MoveStatus(ctx context.Context, periodID int64, from []Status, to Status, onlyUnpaid bool) (int, error) {
	sql := `UPDATE statements SET status = $2, updated_at = NOW() WHERE cut_period_id = $1 AND status = ANY($3)`
	if onlyUnpaid {
		sql += ` AND ` + unpaidClause
	}
	tag, err := r.pool.Exec(ctx, sql, periodID, string(to), statusCodes(from))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// MarkOverduePastPayment flags unpaid statements of collecting periods past their payment date.
func (r *Repository) MarkOverduePastPayment(ctx context.Context, asOf time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE statements s SET status = $1, updated_at = NOW()
FROM cut_periods cp
WHERE cp.id = s.cut_period_id AND cp.status = $2 AND cp.payment_date < $3
AND s.status = ANY($4) AND s.`+unpaidClause,
		string(StatusOverdue), string(periods.StatusCollecting), asOf,
		statusCodes([]Status{StatusGenerated, StatusSent, StatusPartialPaid}))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) FindByPeriodAssociate(ctx context.Context, periodID, associateID int64) (Statement, bool, error) {
	s, err := scanStatement(t.tx.QueryRow(ctx, `SELECT `+statementColumns+` FROM statements
WHERE cut_period_id = $1 AND associate_id = $2`, periodID, associateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Statement{}, false, nil
	}
	if err != nil {
		return Statement{}, false, err
	}
	return s, true, nil
}

func (t *txRepository) PaymentsInWindow(ctx context.Context, associateID int64, start, end time.Time) ([]payments.Payment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+payments.Columns+` FROM payments
WHERE loan_id IN (SELECT id FROM loans WHERE associate_id = $1)
AND payment_due_date BETWEEN $2 AND $3 AND status <> ALL($4) AND statement_id IS NULL
ORDER BY payment_due_date, id FOR UPDATE`, associateID, start, end, unbillable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []payments.Payment
	for rows.Next() {
		p, err := payments.Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepository) Insert(ctx context.Context, s Statement) (Statement, error) {
	stored, err := scanStatement(t.tx.QueryRow(ctx, `INSERT INTO statements
(cut_period_id, associate_id, payment_count, expected_collection, commission_earned, total_commission_owed, status)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)
ON CONFLICT ON CONSTRAINT uq_statements_period_associate DO NOTHING
RETURNING `+statementColumns,
		s.CutPeriodID, s.AssociateID, s.PaymentCount, s.ExpectedCollection.String(), s.CommissionEarned.String(),
		s.TotalCommissionOwed.String(), string(s.Status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Statement{}, shared.ConcurrentUpdate("statement", 0)
	}
	return stored, err
}

func (t *txRepository) LinkPayments(ctx context.Context, statementID int64, paymentIDs []int64) error {
	if len(paymentIDs) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `UPDATE payments SET statement_id = $1, updated_at = NOW()
WHERE id = ANY($2) AND statement_id IS NULL`, statementID, paymentIDs)
	return err
}

func (t *txRepository) Lock(ctx context.Context, id int64) (Statement, periods.Status, error) {
	var phase periods.Status
	s, err := scanStatement(t.tx.QueryRow(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Statement{}, "", shared.NotFound("statement", id)
	}
	if err != nil {
		return Statement{}, "", err
	}
	if err := t.tx.QueryRow(ctx, `SELECT status FROM cut_periods WHERE id = $1`, s.CutPeriodID).Scan(&phase); err != nil {
		return Statement{}, "", err
	}
	return s, phase.Normalize(), nil
}

func (t *txRepository) Update(ctx context.Context, prev, next Statement) error {
	tag, err := t.tx.Exec(ctx, `UPDATE statements SET
status = $2, paid_amount = $3::numeric, late_fee_amount = $4::numeric, late_fee_applied = $5, late_fee_notes = $6,
updated_at = NOW()
WHERE id = $1 AND status = $7 AND paid_amount = $8::numeric`,
		next.ID, string(next.Status), next.PaidAmount.String(), next.LateFeeAmount.String(), next.LateFeeApplied,
		next.LateFeeNotes, string(prev.Status), prev.PaidAmount.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrentUpdate("statement", prev.ID)
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, p StatementPayment) (StatementPayment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO statement_payments
(statement_id, amount, payment_date, method, reference, notes, recorded_by, payment_id)
VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`,
		p.StatementID, p.Amount.String(), p.PaymentDate, p.Method, p.Reference, p.Notes, p.RecordedBy, p.PaymentID).
		Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (t *txRepository) LockInstallment(ctx context.Context, id int64) (payments.Payment, error) {
	return payments.LockForUpdate(ctx, t.tx, id)
}

func (t *txRepository) SaveInstallment(ctx context.Context, prev, next payments.Payment, at time.Time) (bool, error) {
	return payments.SaveCollected(ctx, t.tx, prev, next, at)
}

func (t *txRepository) AddDebt(ctx context.Context, associateID, statementID int64, amount decimal.Decimal) error {
	_, _, err := debts.AddFromStatement(ctx, t.tx, associateID, statementID, amount)
	return err
}
