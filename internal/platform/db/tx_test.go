package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/shared"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakePool struct {
	tx  *fakeTx
	err error
}

func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), pool, func(pgx.Tx) error { return nil }))
	require.True(t, pool.tx.committed)
	require.False(t, pool.tx.rolledBack)
}

func TestWithTxKeepsTypedErrors(t *testing.T) {
	pool := &fakePool{tx: &fakeTx{}}
	err := WithTx(context.Background(), pool, func(pgx.Tx) error {
		return shared.PreconditionFailed("has_statement_payments")
	})
	var perr *shared.PreconditionFailedError
	require.ErrorAs(t, err, &perr)
	require.True(t, pool.tx.rolledBack)
	require.False(t, pool.tx.committed)
}

func TestWithTxMapsSerializationFailures(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}

	pool := &fakePool{tx: &fakeTx{}}
	err := WithTx(context.Background(), pool, func(pgx.Tx) error { return serialization })
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, err.Error(), shared.ErrConcurrentUpdate.Error())

	pool = &fakePool{tx: &fakeTx{commitErr: serialization}}
	err = WithTx(context.Background(), pool, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, shared.ErrConflict)

	pool = &fakePool{tx: &fakeTx{commitErr: errors.New("connection reset")}}
	err = WithTx(context.Background(), pool, func(pgx.Tx) error { return nil })
	require.NotErrorIs(t, err, shared.ErrConflict)
	require.Contains(t, err.Error(), "commit tx")
}

func TestWithTxRequiresPool(t *testing.T) {
	require.Error(t, WithTx(context.Background(), nil, func(pgx.Tx) error { return nil }))

	err := WithTx(context.Background(), &fakePool{err: errors.New("refused")}, func(pgx.Tx) error { return nil })
	require.Contains(t, err.Error(), "begin tx")
}
