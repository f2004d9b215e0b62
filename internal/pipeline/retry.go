package pipeline

import (
	"context"
	"math"
	"strings"
	"time"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
)

// withRetry runs fn until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. Waits between attempts back off exponentially.
func withRetry(ctx context.Context, cfg model.RetryConfig, operation string, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Named("retry").Infow("Retry succeeded", "operation", operation, "attempts", attempt)
			}
			return nil
		}
		if attempt == attempts || !isRetryableError(err, cfg) {
			break
		}

		delay := backoff(cfg, attempt)
		logger.Named("retry").Warnw("Operation failed, retrying", "operation", operation,
			"attempt", attempt, "max_attempts", attempts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "%s: retry aborted", operation)
		case <-timer.C:
		}
	}
	return err
}

// backoff returns the wait after the given failed attempt (1-based).
func backoff(cfg model.RetryConfig, attempt int) time.Duration {
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// isRetryableError matches the error text against the configured transient
// failure markers, case-insensitively.
func isRetryableError(err error, cfg model.RetryConfig) bool {
	msg := strings.ToLower(err.Error())
	for _, retryable := range cfg.RetryableErrors {
		if strings.Contains(msg, strings.ToLower(retryable)) {
			return true
		}
	}
	return false
}
