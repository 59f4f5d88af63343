package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig bounds how a read is retried
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable reports whether err is worth another attempt. Nil means never.
	Retryable func(error) bool
}

// DefaultRetryConfig allows three attempts starting 50ms apart.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2,
	}
}

func (c *RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.BackoffFactor)
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// RetryWithResult calls fn until it succeeds, returns a non-retryable error,
// or the attempts run out. The wait between attempts grows by BackoffFactor.
func RetryWithResult[T any](ctx context.Context, config *RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	delay := config.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if config.Retryable == nil || !config.Retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == config.MaxAttempts {
			break
		}

		if err := wait(ctx, delay); err != nil {
			return zero, err
		}
		delay = config.next(delay)
	}
	return zero, fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
