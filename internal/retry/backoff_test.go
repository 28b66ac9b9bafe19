package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry_Success_FirstAttempt(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{10 * time.Millisecond},
	}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_Success_AfterRetries(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{5 * time.Millisecond, 10 * time.Millisecond},
	}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_ExhaustedAttempts(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{5 * time.Millisecond, 5 * time.Millisecond},
	}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestWithRetry_NonRetryableReturnsImmediately(t *testing.T) {
	fatal := errors.New("storage corrupt")
	cfg := Config{
		MaxAttempts: 5,
		Delays:      []time.Duration{5 * time.Millisecond},
		RetryIf:     func(err error) bool { return !errors.Is(err, fatal) },
	}

	attempts := 0
	err := WithRetry(context.Background(), cfg, func() error {
		attempts++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
	// Non-retryable errors come back unwrapped, no attempt framing.
	assert.Equal(t, fatal, err)
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Minute},
	}

	attempts := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WithRetry(ctx, cfg, func() error {
		attempts++
		return errors.New("transient error")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), Config{}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}
