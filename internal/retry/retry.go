package retry

import (
	"context"
	"math/rand"
	"time"
)

// IsRetryableFunc is a function that determines if an error is retryable
type IsRetryableFunc func(error) bool

// Options configures the retry behavior
type Options struct {
	// MaxRetries is the maximum number of retry attempts (not including the initial attempt)
	MaxRetries int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// BackoffFactor is the factor by which the delay increases after each retry
	BackoffFactor float64

	// JitterFactor adds randomness to the delay (0.0 = no jitter, 1.0 = 100% jitter)
	JitterFactor float64

	// IsRetryable decides whether an error is worth another attempt.
	// Nil means every error is retried.
	IsRetryable IsRetryableFunc

	// Logger is a function that logs retry attempts
	Logger func(format string, args ...interface{})
}

// DefaultOptions returns default retry options
func DefaultOptions() Options {
	return Options{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Do calls fn until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is done. fn receives the zero-based attempt number.
func Do[T any](ctx context.Context, fn func(attempt int) (T, error), opts Options) (T, error) {
	var zero T
	var delay time.Duration
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	logf := opts.Logger
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(attempt)
		if err == nil {
			if attempt > 0 {
				logf("Retry successful on attempt %d", attempt+1)
			}
			return result, nil
		}

		if opts.IsRetryable != nil && !opts.IsRetryable(err) {
			logf("Non-retryable error: %v", err)
			return zero, err
		}
		if attempt >= opts.MaxRetries {
			if opts.MaxRetries > 0 {
				logf("Max retries exceeded (%d attempts): %v", attempt+1, err)
			}
			return zero, err
		}

		// Calculate delay for the next retry
		if attempt == 0 {
			delay = opts.InitialDelay
		} else {
			delay = time.Duration(float64(delay) * opts.BackoffFactor)
		}
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		wait := delay
		if opts.JitterFactor > 0 {
			jitter := float64(delay) * opts.JitterFactor
			wait = time.Duration(float64(delay) + (rnd.Float64()*jitter*2 - jitter))
		}

		logf("Retry attempt %d after %v: %v", attempt+1, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
