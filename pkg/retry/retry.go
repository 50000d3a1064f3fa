// Package retry runs an operation again with exponential backoff until it
// succeeds, fails permanently or the attempt budget runs out. The delay
// schedule is cenkalti/backoff; this package adds attempt counting, a retry
// predicate and a notification hook on top.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// permanentError stops the retry loop. Do returns the wrapped error.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as final: Do returns it without another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Policy describes one retry loop.
type Policy struct {
	// Attempts counts the first call too. Values below 1 mean a single call.
	Attempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter is the backoff randomization factor in [0, 1].
	Jitter float64

	// RetryIf decides whether an error is worth another attempt.
	// Nil retries everything except Permanent errors and context errors.
	RetryIf func(error) bool

	// OnRetry runs before sleeping; attempt is the number of the failed call.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.Attempts = n
		}
	}
}

// WithInitialDelay sets the pause before the second attempt.
func WithInitialDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.InitialDelay = d
		}
	}
}

// WithMaxDelay caps a single pause.
func WithMaxDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

// WithMultiplier sets the growth factor. Values below 1 are ignored.
func WithMultiplier(m float64) Option {
	return func(p *Policy) {
		if m >= 1 {
			p.Multiplier = m
		}
	}
}

// WithJitter sets the randomization factor. Values outside [0, 1] are ignored.
func WithJitter(j float64) Option {
	return func(p *Policy) {
		if j >= 0 && j <= 1 {
			p.Jitter = j
		}
	}
}

// WithRetryIf restricts retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(p *Policy) { p.RetryIf = fn }
}

// WithOnRetry registers a hook called before each pause.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) { p.OnRetry = fn }
}

// Retrier is a reusable Policy.
type Retrier struct {
	policy Policy
}

// New builds a Retrier: 3 attempts starting at 100ms, doubling up to 10s
// with 10% jitter, adjusted by opts.
func New(opts ...Option) *Retrier {
	p := Policy{
		Attempts:     3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       0.1,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

func (r *Retrier) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.policy.RetryIf != nil {
		return r.policy.RetryIf(err)
	}
	return true
}

// Do calls op until it returns nil, returns an error that should not be
// retried, or the budget is spent. The last error is returned unwrapped.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return backoff.Permanent(errors.Unwrap(err))
		case !r.shouldRetry(err):
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(r.schedule(), ctx), func(err error, delay time.Duration) {
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
	})
	return err
}

func (r *Retrier) schedule() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialDelay
	eb.MaxInterval = r.policy.MaxDelay
	eb.Multiplier = r.policy.Multiplier
	eb.RandomizationFactor = r.policy.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	retries := 0
	if r.policy.Attempts > 1 {
		retries = r.policy.Attempts - 1
	}
	return backoff.WithMaxRetries(eb, uint64(retries))
}

// Do runs op once under a Retrier built from opts.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData is Do for operations that produce a value.
func DoWithData[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := New(opts...).Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// LockRetrier polls a busy per-enrollment lock. Delays stay short because
// the holder keeps it only for one read-modify-write.
func LockRetrier(attempts int) *Retrier {
	if attempts <= 0 {
		attempts = 5
	}
	return New(
		WithMaxAttempts(attempts),
		WithInitialDelay(20*time.Millisecond),
		WithMaxDelay(500*time.Millisecond),
		WithJitter(0.2),
	)
}
