package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const windowSQL = `SELECT id, occurred_at, actor_id, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR actor_id = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action LIKE $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7 LIMIT $8`

// Window implements Repository. An action ending in ".*" matches the prefix.
func (r *PGRepository) Window(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("audit: repository not initialised")
	}
	f := q.Filters
	action := optionalText(f.Action)
	if action.Valid && strings.HasSuffix(action.String, ".*") {
		action.String = strings.TrimSuffix(action.String, "*") + "%"
	}
	rows, err := r.pool.Query(ctx, windowSQL,
		timestamptz(f.From), timestamptz(f.To), optionalInt(f.ActorID),
		optionalText(f.Entity), optionalText(f.EntityID), action,
		q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 && string(meta) != "null" {
			row.Meta = meta
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
