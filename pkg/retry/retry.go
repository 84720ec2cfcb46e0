// Package retry repeats a unit of work after a transient failure. The
// progress flow uses it to rerun a whole read-modify-write once after a
// persistence conflict.
package retry

import (
	"context"
	"time"
)

// Policy decides how many times and how often a unit of work is repeated.
type Policy struct {
	// MaxAttempts counts the first call too.
	MaxAttempts int

	// Backoff is multiplied by the attempt number before each repeat.
	Backoff time.Duration

	// Retryable reports whether an error is worth another attempt.
	// A nil Retryable repeats nothing.
	Retryable func(error) bool

	// OnRetry runs before every repeat.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Policy.
type Option func(*Policy)

// WithMaxAttempts sets the attempt limit. Non-positive values are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.Backoff = d
		}
	}
}

// WithOnRetry sets a callback invoked before each repeat.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(p *Policy) {
		p.OnRetry = fn
	}
}

// Retrier runs work under a Policy.
type Retrier struct {
	policy Policy
}

// ConflictRetrier repeats work once more when isConflict matches the error.
func ConflictRetrier(isConflict func(error) bool, opts ...Option) *Retrier {
	p := Policy{
		MaxAttempts: 2,
		Backoff:     10 * time.Millisecond,
		Retryable:   isConflict,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Retrier{policy: p}
}

// MaxAttempts returns the attempt limit.
func (r *Retrier) MaxAttempts() int {
	return r.policy.MaxAttempts
}

// Do calls work until it succeeds, fails with a non-retryable error or runs
// out of attempts. The last error is returned unwrapped.
func (r *Retrier) Do(ctx context.Context, work func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = work(ctx)
		if lastErr == nil {
			return nil
		}
		if r.policy.Retryable == nil || !r.policy.Retryable(lastErr) || attempt == r.policy.MaxAttempts {
			return lastErr
		}

		delay := r.policy.Backoff * time.Duration(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, lastErr, delay)
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// DoWithData is Do for work that produces a value.
func DoWithData[T any](ctx context.Context, r *Retrier, work func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var werr error
		result, werr = work(ctx)
		return werr
	})
	return result, err
}
