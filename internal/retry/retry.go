// Package retry provides the retry policy shared by the source and embedding
// clients: a bounded attempt count, an error-aware backoff function, and a
// retryable-error predicate. Sleeping goes through an injectable SleepFunc so
// tests can run against a fake clock.
package retry

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done. The zero value of Policy uses
// a real timer.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts bounds the total number of calls, including the first.
	MaxAttempts int

	// Backoff returns the delay before the next attempt. attempt is 1-based
	// (the attempt that just failed) and err is the failure, so policies can
	// back off differently per error kind. A nil Backoff retries immediately.
	Backoff func(attempt int, err error) time.Duration

	// Retryable classifies errors. A nil predicate retries everything.
	Retryable func(err error) bool

	// Sleep is the clock used between attempts; nil means a real timer.
	Sleep SleepFunc
}

// Do runs op until it succeeds, exhausts MaxAttempts, fails a non-retryable
// error, or ctx is cancelled. It returns the last error observed.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = op(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		var d time.Duration
		if p.Backoff != nil {
			d = p.Backoff(attempt, err)
		}
		if serr := sleep(ctx, d); serr != nil {
			return serr
		}
	}
	return err
}

// Exponential doubles the delay each attempt, starting at base and capped at
// max (0 means uncapped).
func Exponential(base, max time.Duration) func(attempt int, err error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// Linear grows the delay by step per attempt.
func Linear(step time.Duration) func(attempt int, err error) time.Duration {
	return func(attempt int, _ error) time.Duration {
		return time.Duration(attempt) * step
	}
}
