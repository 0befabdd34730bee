// Package retry runs store operations with a per-attempt timeout and a
// bounded number of retries with exponential backoff and jitter.
//
// Governance calls are latency sensitive, so the default policy is a single
// retry after a short delay. Results that are answers rather than failures
// (quota exhausted, address suppressed, not found) must be wrapped with
// Permanent or returned as non-errors so they are never retried.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy controls how an operation is attempted.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Timeout bounds each individual attempt. Zero means no per-attempt timeout.
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy retries once with a 300ms per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 1,
		Timeout:    300 * time.Millisecond,
		BaseDelay:  25 * time.Millisecond,
		MaxDelay:   250 * time.Millisecond,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged apart from the marker, so errors.Is still matches it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, the parent
// context ends, or the retry budget is spent. The returned error is the last
// one op produced, with any Permanent marker removed.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.delay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}

		err := p.attempt(ctx, op)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p Policy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(attemptCtx)
}

// delay returns the full-jitter backoff for the given retry attempt:
// random(0, min(MaxDelay, BaseDelay * 2^(attempt-1))).
func (p Policy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.MaxDelay > 0 && exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}
	return time.Duration(rand.Float64() * exp)
}
