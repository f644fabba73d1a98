// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package utils provides utility functions for the roster service.
package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/linuxfoundation/lfx-v2-roster-service/pkg/errors"
)

// RetryConfig holds retry configuration for operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable reports whether a failed attempt should be retried.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// NewRetryConfig creates a RetryConfig with specified parameters
func NewRetryConfig(maxAttempts int, baseDelay, maxDelay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
}

// RetryServiceUnavailable only retries infrastructure outages; validation
// and encoding failures will not get better by waiting.
func RetryServiceUnavailable(err error) bool {
	return errs.KindOf(err) == errs.KindServiceUnavailable
}

// backoff returns baseDelay * 2^(attempt-1), capped at MaxDelay.
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * c.BaseDelay
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RetryWithExponentialBackoff executes fn until it succeeds, the attempts are
// exhausted, the error is not retryable, or ctx is cancelled.
func RetryWithExponentialBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := config.backoff(attempt)

			slog.WarnContext(ctx, "retrying operation",
				"attempt", attempt+1,
				"total_attempts", config.MaxAttempts,
				"retry_delay_ms", delay.Milliseconds(),
			)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			}
		}

		err := fn()
		if err == nil {
			if attempt > 0 {
				slog.InfoContext(ctx, "retry succeeded",
					"attempt", attempt+1,
					"total_attempts", config.MaxAttempts,
				)
			}
			return nil
		}

		lastErr = err
		slog.ErrorContext(ctx, "operation attempt failed",
			"attempt", attempt+1,
			"total_attempts", config.MaxAttempts,
			"error", err,
		)

		if config.Retryable != nil && !config.Retryable(err) {
			return fmt.Errorf("non-retryable failure on attempt %d: %w", attempt+1, err)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
