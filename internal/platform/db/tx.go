package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/credinet/credinet/internal/shared"
)

// Beginner opens transactions; satisfied by *pgxpool.Pool.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn inside a repeatable-read transaction. Typed errors returned by fn pass
// through untouched; a serialization failure from fn or commit becomes a retryable conflict.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	if pool == nil {
		return fmt.Errorf("platform/db: pool not initialised")
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		if shared.IsSerializationFailure(err) {
			return shared.ConcurrentUpdate("transaction", 0)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if shared.IsSerializationFailure(err) {
			return shared.ConcurrentUpdate("transaction", 0)
		}
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}
