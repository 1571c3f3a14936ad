// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	// Retryable decides whether an error is worth another attempt. All
	// errors are retried when nil.
	Retryable func(error) bool
	Logger    *zap.Logger
}

// DefaultConfig returns a default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		Logger:        zap.NewNop(),
	}
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err: err}
}

// Do executes fn with exponential backoff retry logic
func Do(ctx context.Context, config Config, fn func(ctx context.Context) error) error {
	_, err := DoResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoResult executes fn and returns its result, retrying on failure.
func DoResult[T any](ctx context.Context, config Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				config.Logger.Info("operation succeeded after retry",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", config.MaxAttempts))
			}
			return result, nil
		}

		lastErr = err

		var p permanent
		if errors.As(err, &p) {
			return zero, p.err
		}
		if config.Retryable != nil && !config.Retryable(err) {
			config.Logger.Warn("non-retryable error encountered",
				zap.Error(err),
				zap.Int("attempt", attempt))
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		delay := calculateDelay(attempt, config)
		config.Logger.Warn("operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", config.MaxAttempts),
			zap.Duration("delay", delay))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay for the next retry attempt
func calculateDelay(attempt int, config Config) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1))

	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	// ±10% jitter
	if config.Jitter {
		randomBig, err := rand.Int(rand.Reader, big.NewInt(200))
		if err == nil {
			randomFloat := (float64(randomBig.Int64()) / 100.0) - 1.0
			delay += delay * 0.1 * randomFloat
		}
	}

	return time.Duration(delay)
}
