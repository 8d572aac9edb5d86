// Package retry holds the single backoff policy shared by model invocation and warmup.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy describes exponential backoff with jitter and a fixed attempt ceiling.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	Jitter      time.Duration

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits for d or until ctx is done. Tests swap it out.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from running out of attempts.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Default returns the policy used when nothing is configured: 4 attempts, 1s doubling to 30s.
func Default() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: time.Second, Factor: 2, MaxDelay: 30 * time.Second, Jitter: 200 * time.Millisecond}
}

// Backoff returns the delay after the given 1-based attempt, without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, ctx ends, or attempts run out.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		last = err
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := p.Backoff(attempt)
		if p.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(p.Jitter)))
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, last)
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
