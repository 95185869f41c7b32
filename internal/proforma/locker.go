package proforma

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/laha-editions/proforma/internal/platform/cache"
)

// ConvertLockKey is the lock held while an order is created for id.
func ConvertLockKey(id uuid.UUID) string {
	return fmt.Sprintf("proforma:%s:convert", id)
}

// LocalLocker is an in-process Locker for single instance deployments and
// tests. The ttl is ignored; locks live until released.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker constructs an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire takes key or fails immediately with ErrConcurrentUpdate.
func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s is locked", ErrConcurrentUpdate, key)
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLocker is a Locker shared by every instance through Redis.
type RedisLocker struct {
	locks *cache.Locker
}

// NewRedisLocker constructs a Redis backed Locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locks: cache.NewLocker(client)}
}

// Acquire takes key for at most ttl or fails with ErrConcurrentUpdate.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	release, err := l.locks.TryAcquire(ctx, key, ttl)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
	}
	return release, err
}
