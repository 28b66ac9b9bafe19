// Package retry provides bounded retry with backoff for transient failures
// during the boot sequence.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	Delays      []time.Duration

	// RetryIf decides whether an error is worth another attempt. A nil
	// RetryIf retries everything. Non-retryable errors are returned
	// immediately, unwrapped.
	RetryIf func(error) bool
}

// WithRetry executes fn up to MaxAttempts times, sleeping between attempts
// per Delays (the last delay repeats if attempts outnumber delays). The
// context cancels any pending sleep. When attempts are exhausted, the last
// error is returned wrapped with attempt context.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delayIndex := attempt - 1
			if delayIndex >= len(cfg.Delays) {
				delayIndex = len(cfg.Delays) - 1
			}
			var delay time.Duration
			if delayIndex >= 0 {
				delay = cfg.Delays[delayIndex]
			}

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
