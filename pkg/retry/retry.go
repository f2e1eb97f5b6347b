// Package retry provides exponential backoff retry for outbound calls.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig controls the backoff schedule
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// JitterFactor randomizes each delay by +/- this fraction (0 disables)
	JitterFactor float64
}

// DefaultConfig is a reasonable schedule for HTTP calls
var DefaultConfig = RetryConfig{
	MaxAttempts:  3,
	BaseDelay:    500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
}

// WithExponentialBackoff runs fn up to cfg.MaxAttempts times, sleeping an
// exponentially growing delay between attempts. isRetryable decides whether a
// failure is worth another attempt; a nil isRetryable retries everything.
func WithExponentialBackoff(ctx context.Context, cfg RetryConfig, fn func() error, isRetryable func(error) bool) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay, cfg.JitterFactor)):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("max attempts exceeded: %w", lastErr)
}

func jitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * factor * float64(d)
	return time.Duration(float64(d) + offset)
}
