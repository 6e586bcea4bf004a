package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	client, _ := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lending:period:1:lock", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "lending:period:1:lock", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	release()
	release2, err := locker.Acquire(ctx, "lending:period:1:lock", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestLockerExpires(t *testing.T) {
	client, mr := newTestClient(t)
	locker := NewLocker(client)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
}

func TestNilLockerIsNoop(t *testing.T) {
	release, err := NewLocker(nil).Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	release()
}

func TestJSONCacheFetchAndInvalidate(t *testing.T) {
	client, _ := newTestClient(t)
	c := NewJSONCache(client, time.Minute)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"n": calls}, nil
	}

	var out map[string]int
	require.NoError(t, c.FetchJSON(ctx, "key", &out, loader))
	require.Equal(t, 1, out["n"])
	require.NoError(t, c.FetchJSON(ctx, "key", &out, loader))
	require.Equal(t, 1, out["n"])
	require.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx, "key"))
	require.NoError(t, c.FetchJSON(ctx, "key", &out, loader))
	require.Equal(t, 2, out["n"])
}
