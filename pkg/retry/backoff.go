// Package retry runs operations with exponential backoff. It is used around
// infrastructure calls (database connects, serialization conflicts, Redis reads),
// never around ledger instructions.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config defines retry behavior
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// JitterEnabled spreads each delay by +/-15%.
	JitterEnabled bool
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// DefaultConfig suits connecting to a backing service at startup.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    10,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// ConflictConfig is tuned for short transaction conflicts: many quick attempts.
func ConflictConfig(retryable func(error) bool) Config {
	return Config{
		MaxRetries:    8,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      250 * time.Millisecond,
		Multiplier:    2.0,
		JitterEnabled: true,
		Retryable:     retryable,
	}
}

// WithBackoff calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx ends.
func WithBackoff(ctx context.Context, cfg Config, logger *zap.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry cancelled: %w", ctxErr)
		}

		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("Operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt))
			}
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := Delay(cfg, attempt)
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", cfg.MaxRetries),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxRetries, err)
}

// Delay is the wait before retrying after the given failed attempt (1-based).
func Delay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(cfg.MaxDelay))
	if cfg.JitterEnabled {
		d *= 0.85 + rand.Float64()*0.3
	}
	return time.Duration(d)
}
