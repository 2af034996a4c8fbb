// Package retry runs outbound calls under a bounded attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff returns how long to wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits base*attempt after each failure.
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// MaxAttempts includes the first try. Values below 1 mean a single try.
	MaxAttempts int
	Backoff     Backoff
	// AttemptTimeout, when set, bounds each individual attempt.
	AttemptTimeout time.Duration
	// OnRetry observes every failure that will be retried.
	OnRetry func(attempt int, err error)
}

// Default is one attempt plus two retries with linear backoff.
func Default(base time.Duration) Policy {
	return Policy{MaxAttempts: 3, Backoff: Linear(base)}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempt budget
// is spent or ctx is done.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.try(ctx, fn)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry: %w after attempt %d: %v", ctx.Err(), attempt, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.wait(attempt)); err != nil {
			return fmt.Errorf("retry: %w after attempt %d", err, attempt)
		}
	}

	return fmt.Errorf("retry: gave up after %d attempts: %w", attempts, err)
}

func (p Policy) try(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

func (p Policy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
