package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/credinet/credinet/internal/shared"
)

// Repository stores cut periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, period_code, start_date, end_date, cut_date, payment_date, status,
cutoff_at, closed_at, closed_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (CutPeriod, error) {
	var p CutPeriod
	err := row.Scan(&p.ID, &p.Code, &p.StartDate, &p.EndDate, &p.CutDate, &p.PaymentDate, &p.Status,
		&p.CutoffAt, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collect(rows pgx.Rows) ([]CutPeriod, error) {
	defer rows.Close()
	var out []CutPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get loads a period by id.
func (r *Repository) Get(ctx context.Context, id int64) (CutPeriod, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM cut_periods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CutPeriod{}, shared.NotFound("cut_period", id)
	}
	return p, err
}

// GetByCode loads a period by code.
func (r *Repository) GetByCode(ctx context.Context, code string) (CutPeriod, error) {
	p, err := scanPeriod(r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM cut_periods WHERE period_code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return CutPeriod{}, shared.NotFoundKey("cut_period", code)
	}
	return p, err
}

// List returns periods by cut date. The PENDING filter matches legacy ACTIVE rows.
func (r *Repository) List(ctx context.Context, status Status, page shared.Page) ([]CutPeriod, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch status {
	case "":
		rows, err = r.pool.Query(ctx, `SELECT `+periodColumns+` FROM cut_periods
ORDER BY cut_date LIMIT $1 OFFSET $2`, page.Limit, page.Offset)
	case StatusPending:
		rows, err = r.pool.Query(ctx, `SELECT `+periodColumns+` FROM cut_periods
WHERE status IN ($1, $2) ORDER BY cut_date LIMIT $3 OFFSET $4`,
			string(StatusPending), string(StatusLegacyActive), page.Limit, page.Offset)
	default:
		rows, err = r.pool.Query(ctx, `SELECT `+periodColumns+` FROM cut_periods
WHERE status = $1 ORDER BY cut_date LIMIT $2 OFFSET $3`, string(status), page.Limit, page.Offset)
	}
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Insert stores a period unless its code already exists.
func (r *Repository) Insert(ctx context.Context, p CutPeriod) (CutPeriod, bool, error) {
	stored, err := scanPeriod(r.pool.QueryRow(ctx, `INSERT INTO cut_periods
(period_code, start_date, end_date, cut_date, payment_date, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (period_code) DO NOTHING
RETURNING `+periodColumns, p.Code, p.StartDate, p.EndDate, p.CutDate, p.PaymentDate, string(p.Status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return CutPeriod{}, false, nil
	}
	if err != nil {
		return CutPeriod{}, false, err
	}
	return stored, true, nil
}

// Transition moves a period one phase forward, guarded on the current phase.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status, actorID int64, at time.Time) error {
	fromCodes := []string{string(from)}
	if from == StatusPending {
		fromCodes = append(fromCodes, string(StatusLegacyActive))
	}
	var sql string
	args := []any{id, string(to), fromCodes, at}
	switch to {
	case StatusCutoff:
		sql = `UPDATE cut_periods SET status = $2, cutoff_at = $4, updated_at = $4 WHERE id = $1 AND status = ANY($3)`
	case StatusClosed:
		sql = `UPDATE cut_periods SET status = $2, closed_at = $4, closed_by = $5, updated_at = $4 WHERE id = $1 AND status = ANY($3)`
		args = append(args, actorID)
	default:
		sql = `UPDATE cut_periods SET status = $2, updated_at = $4 WHERE id = $1 AND status = ANY($3)`
	}
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConcurrentUpdate("cut_period", id)
	}
	return nil
}

// DueForCutoff lists pending periods whose cut date is on or before asOf.
func (r *Repository) DueForCutoff(ctx context.Context, asOf time.Time) ([]CutPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM cut_periods
WHERE status IN ($1, $2) AND cut_date <= $3 ORDER BY cut_date`,
		string(StatusPending), string(StatusLegacyActive), asOf)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// CountInPhase counts other periods currently in one of the phases.
func (r *Repository) CountInPhase(ctx context.Context, excludeID int64, phases ...Status) (int, error) {
	codes := make([]string, 0, len(phases))
	for _, p := range phases {
		codes = append(codes, string(p))
	}
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cut_periods WHERE id <> $1 AND status = ANY($2)`,
		excludeID, codes).Scan(&n)
	return n, err
}
