// Package retry implements bounded exponential backoff for flaky
// backend calls, used around the persistent account endpoint store.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config bounds the backoff schedule. Delays start at InitialDelay and
// grow by Multiplier per attempt up to MaxDelay. Errors matching
// NonRetryableErrors stop the loop immediately.
type Config struct {
	MaxAttempts        int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Multiplier         float64
	Jitter             bool
	NonRetryableErrors []error
}

// DefaultConfig is tuned for a local or same-rack Redis round trip.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry runs fn until it succeeds, hits a non-retryable error, the
// context is cancelled or the attempt budget runs out.
func Retry(ctx context.Context, cfg Config, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for operations that produce a value.
func RetryWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if terminal(err, cfg.NonRetryableErrors) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled during wait: %w", ctx.Err())
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return zero, fmt.Errorf("max attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// backoff is InitialDelay * Multiplier^attempt capped at MaxDelay,
// spread by up to ±25% when jitter is on.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		delay *= 0.75 + 0.5*rand.Float64()
	}
	return time.Duration(delay)
}

func terminal(err error, nonRetryable []error) bool {
	for _, sentinel := range nonRetryable {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
