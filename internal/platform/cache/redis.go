// Package cache wraps the Redis client used for advisory locks and cached
// report snapshots.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a new Redis client.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Lock is a best-effort advisory lock backed by SET NX. Database uniqueness
// constraints remain the authoritative guard; the lock only narrows the race
// window between concurrent callers.
type Lock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLock constructs a Lock with the given key TTL.
func NewLock(client *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire attempts to take the named lock. It returns false when another
// holder owns the key.
func (l *Lock) Acquire(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the named lock. Releasing an expired lock is not an error.
func (l *Lock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("platform/cache: release %s: %w", key, err)
	}
	return nil
}
