package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"
	"github.com/skillforge/lms-backend/pkg/logger"
	"github.com/skillforge/lms-backend/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT LOCKER
// SET NX PX with a random token; release deletes the key only if the token
// still matches, so an expired holder never frees someone else's lock.
// ══════════════════════════════════════════════════════════════════════════════

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EnrollmentLocker implements enrollment.Locker across replicas.
type EnrollmentLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retrier *retry.Retrier
	log     *logger.Logger
}

// Compile-time check that EnrollmentLocker implements enrollment.Locker.
var _ enrollment.Locker = (*EnrollmentLocker)(nil)

// NewEnrollmentLocker creates a locker. attempts bounds how often a busy lock is retried.
func NewEnrollmentLocker(cache *Cache, ttl time.Duration, attempts int, log *logger.Logger) *EnrollmentLocker {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &EnrollmentLocker{
		client:  cache.Client(),
		ttl:     ttl,
		retrier: retry.LockRetrier(attempts),
		log:     log.With(logger.Component("redis_locker")),
	}
}

// Acquire blocks until the lock is held or the retry budget is spent.
// It returns shared.ErrLockNotAcquired when the lock stays busy.
func (l *EnrollmentLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := uuid.NewString()

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return retry.Permanent(shared.WrapError("enrollment", "Lock", shared.ErrServiceUnavailable,
				"lock service unavailable", err))
		}
		if !ok {
			return shared.ErrLockNotAcquired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	release := func() {
		// The caller's context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.log.Warn("failed to release enrollment lock", logger.String("key", key), logger.Err(err))
		}
	}
	return release, nil
}
