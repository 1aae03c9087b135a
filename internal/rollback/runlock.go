package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/NomadCrew/release-gate/errors"
	"github.com/NomadCrew/release-gate/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLock serializes rollback attempts per service. Two orchestrators
// racing on the same target is the one concurrency hazard this tool has,
// so mutation never starts until the lock is held.
type RunLock interface {
	// Acquire takes the lock for a service, returning a release func.
	// Returns an error when another rollback currently holds it.
	Acquire(ctx context.Context, service string) (func(), error)
}

// redisRunLock implements RunLock on Redis SET NX with a TTL, so a crashed
// run cannot hold a service locked forever.
type redisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLock creates a cross-process run lock. ttl bounds how long a
// crashed holder can block later rollbacks.
func NewRedisRunLock(client *redis.Client, ttl time.Duration) RunLock {
	return &redisRunLock{client: client, ttl: ttl}
}

func lockKey(service string) string {
	return fmt.Sprintf("rollback_lock:%s", service)
}

func (l *redisRunLock) Acquire(ctx context.Context, service string) (func(), error) {
	key := lockKey(service)
	owner := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ServerError, "rollback lock check failed")
	}
	if !ok {
		return nil, apperrors.ValidationFailed("rollback_in_progress",
			fmt.Sprintf("another rollback already holds the lock for %s", service))
	}

	release := func() {
		// Only delete our own lock; an expired lock may have been re-acquired.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		val, err := l.client.Get(ctx, key).Result()
		if err != nil || val != owner {
			return
		}
		if err := l.client.Del(ctx, key).Err(); err != nil {
			logger.GetLogger().Warnw("Failed to release rollback lock", "service", service, "error", err)
		}
	}
	return release, nil
}

// processRunLock is the in-process fallback used when Redis is not
// configured. It cannot guard against a second process on another host.
type processRunLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewProcessRunLock creates a single-process run lock.
func NewProcessRunLock() RunLock {
	return &processRunLock{held: make(map[string]bool)}
}

func (l *processRunLock) Acquire(_ context.Context, service string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[service] {
		return nil, apperrors.ValidationFailed("rollback_in_progress",
			fmt.Sprintf("another rollback already holds the lock for %s", service))
	}
	l.held[service] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, service)
	}
	return release, nil
}
