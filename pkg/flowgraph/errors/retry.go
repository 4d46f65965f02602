package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy configures retry behavior for a single external call.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the pause before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the pause between attempts.
	MaxBackoff time.Duration

	// Multiplier is applied to the backoff after each attempt.
	Multiplier float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// Retryable optionally overrides IsRetryable.
	Retryable func(error) bool
}

// DefaultRetry suits interactive calls: a few quick attempts.
var DefaultRetry = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 200 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
	Multiplier:     2.0,
	Jitter:         0.1,
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryPolicy{
	MaxAttempts: 1,
}

// Backoff returns the pause after the given attempt (1-based), before jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxBackoff > 0 && d > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done. It returns the value, the number of
// attempts made and, on failure, a *CategorizedError wrapping the last error.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T

	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, &CategorizedError{
				Err: err, Category: CategoryPermanent, Attempts: attempt - 1, Context: "context done",
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err

		if !retryable(err) {
			return zero, attempt, &CategorizedError{Err: err, Category: Categorize(err), Attempts: attempt}
		}

		if attempt == attempts {
			break
		}

		timer := time.NewTimer(withJitter(p.Backoff(attempt), p.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, &CategorizedError{
				Err: ctx.Err(), Category: CategoryPermanent, Attempts: attempt, Context: "context done during backoff",
			}
		case <-timer.C:
		}
	}

	return zero, attempts, &CategorizedError{
		Err:      lastErr,
		Category: Categorize(lastErr),
		Attempts: attempts,
		Context:  "max attempts exceeded",
	}
}

// withJitter spreads d by up to +/- jitter.
func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	delta := float64(d) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(d) + delta)
}
