package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker runs callbacks under a distributed redis lock.
type Locker struct {
	client *redislock.Client
}

// NewLocker wraps a redis client.
func NewLocker(client redis.UniversalClient) *Locker {
	return &Locker{client: redislock.New(client)}
}

// RunExclusive obtains key for ttl and runs fn. It reports false without running fn when
// another holder owns the lock.
func (l *Locker) RunExclusive(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if l == nil || l.client == nil {
		return true, fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return false, nil
		}
		return false, fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return true, fn(ctx)
}
