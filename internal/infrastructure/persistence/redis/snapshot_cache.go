package redis

import (
	"context"
	"errors"
	"time"

	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/pkg/circuitbreaker"
)

// SnapshotCache implements enrollment.SnapshotCache on top of Cache.
type SnapshotCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// Compile-time check that SnapshotCache implements enrollment.SnapshotCache.
var _ enrollment.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCacheOption configures a SnapshotCache.
type SnapshotCacheOption func(*SnapshotCache)

// WithBreaker short-circuits cache calls while Redis keeps failing.
// Callers treat cache errors as misses, so an open circuit degrades to
// recomputing every snapshot.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) SnapshotCacheOption {
	return func(s *SnapshotCache) {
		s.breaker = cb
	}
}

// NewSnapshotCache creates a new SnapshotCache. A non-positive ttl falls back to TTLSnapshotCache.
func NewSnapshotCache(cache *Cache, ttl time.Duration, opts ...SnapshotCacheOption) *SnapshotCache {
	if ttl <= 0 {
		ttl = TTLSnapshotCache
	}
	s := &SnapshotCache{cache: cache, ttl: ttl}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SnapshotCache) do(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

// Get loads a cached snapshot into dest. It reports false on a miss.
func (s *SnapshotCache) Get(ctx context.Context, studentID, courseID string, dest interface{}) (bool, error) {
	found := false
	err := s.do(ctx, func(ctx context.Context) error {
		err := s.cache.Get(ctx, SnapshotKey(studentID, courseID), dest)
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, ErrCacheMiss):
			return nil
		default:
			return err
		}
	})
	return found, err
}

// Set stores a snapshot.
func (s *SnapshotCache) Set(ctx context.Context, studentID, courseID string, snapshot interface{}) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, SnapshotKey(studentID, courseID), snapshot, s.ttl)
	})
}

// Invalidate drops the cached snapshot. It bypasses the breaker: a skipped
// invalidation would leave a stale snapshot behind once Redis recovers.
func (s *SnapshotCache) Invalidate(ctx context.Context, studentID, courseID string) error {
	return s.cache.Delete(ctx, SnapshotKey(studentID, courseID))
}

// InvalidateCourse drops every cached snapshot of a course. Run after the
// module list changes, since cached percentages were computed against the
// old one.
func (s *SnapshotCache) InvalidateCourse(ctx context.Context, courseID string) (int, error) {
	return s.cache.DeleteMatching(ctx, PrefixSnapshot+"*:"+courseID)
}
