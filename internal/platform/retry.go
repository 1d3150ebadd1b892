package platform

import (
	"context"
	"fmt"
	"time"

	"tg-sentinel/internal/config"
	"tg-sentinel/internal/logger"
)

// Retry runs fn, retrying transient failures with exponential backoff up to
// the configured attempt cap. Authority errors and other permanent failures
// return immediately. After the final attempt the last error is returned so
// the caller can log the action as failed rather than silently swallow it.
func Retry(ctx context.Context, policy config.RetryConfig, op string, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		logger.Warningf("%s failed (attempt %d/%d), retrying in %v: %v", op, attempt, attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s: attempts exhausted: %w", op, err)
}
