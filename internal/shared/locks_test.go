package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBatchLockAcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewBatchLock(client, time.Minute)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second holder is refused while the key exists.
	acquired, err = lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, lock.Release(ctx, ReconBatchLockKey))

	acquired, err = lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestBatchLockExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewBatchLock(client, time.Second)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(2 * time.Second)

	acquired, err = lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.True(t, acquired)
}

func TestBatchLockNilClient(t *testing.T) {
	lock := NewBatchLock(nil, time.Minute)
	ctx := context.Background()

	acquired, err := lock.Acquire(ctx, ReconBatchLockKey)
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, lock.Release(ctx, ReconBatchLockKey))
}
