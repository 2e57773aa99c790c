package blob

import (
	"context"
	"time"

	"github.com/p8fs/p8fs/internal/logger"
)

// retryConfig controls the part-upload retry loop.
type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

var defaultPartRetry = retryConfig{
	maxAttempts: 3,
	baseDelay:   250 * time.Millisecond,
	maxDelay:    5 * time.Second,
}

// retryWithBackoff runs fn up to cfg.maxAttempts times with exponential
// backoff. Context cancellation stops the loop between attempts.
func retryWithBackoff(ctx context.Context, cfg retryConfig, fn func() error) error {
	var err error
	delay := cfg.baseDelay
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == cfg.maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Debug("Retrying blob operation",
			logger.KeyAttempt, attempt,
			logger.KeyError, err.Error())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, cfg.maxDelay)
	}
	return err
}
