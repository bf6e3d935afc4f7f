package shared

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReconBatchLockKey guards the batch auto-reconciler critical section.
const ReconBatchLockKey = "recon:batch:lock"

// BatchLock provides best-effort mutual exclusion across workers.
type BatchLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBatchLock builds a lock with the given expiry.
func NewBatchLock(client *redis.Client, ttl time.Duration) *BatchLock {
	return &BatchLock{client: client, ttl: ttl}
}

// Acquire attempts to take the lock. A nil client reports acquired so
// single-worker deployments run unguarded.
func (l *BatchLock) Acquire(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
}

// Release drops the lock.
func (l *BatchLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
