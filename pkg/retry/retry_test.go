package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackendDown = errors.New("backend down")

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		attempts++
		if attempts < 3 {
			return errBackendDown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		attempts++
		return errBackendDown
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, 4, attempts) // first try plus MaxAttempts retries
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	missing := errors.New("endpoint not bound")
	cfg := fastConfig()
	cfg.NonRetryableErrors = []error{missing}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return missing
	})
	require.Error(t, err)
	// the sentinel comes back unwrapped so callers can errors.Is it
	assert.ErrorIs(t, err, missing)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(), func() error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastConfig(), func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errBackendDown
		}
		return "relay-7", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "relay-7", got)
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	cfg := Config{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   10.0,
	}
	assert.Equal(t, 100*time.Millisecond, backoff(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, backoff(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, backoff(cfg, 5))
}
