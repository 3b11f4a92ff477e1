// Package retry provides bounded retries with exponential backoff and jitter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config defines retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first one)
	MaxAttempts int
	// InitialDelay is the initial delay between retries
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// Jitter adds randomization to delays to avoid thundering herd
	Jitter bool
	// OnRetry is called on each retry attempt for observability
	OnRetry func(attempt int, err error, nextDelay time.Duration)
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Normalize validates and normalizes the configuration
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay < 0 {
		return errors.New("retry: InitialDelay must not be negative")
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		return errors.New("retry: MaxDelay must not be less than InitialDelay")
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	return nil
}

// RetryableFunc is the operation being retried.
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc decides whether an error is worth another attempt.
type IsRetryableFunc func(err error) bool

// RetriesExceededError reports that all attempts failed; it wraps the last error.
type RetriesExceededError struct {
	Attempts int
	Last     error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %d attempts exceeded: %v", e.Attempts, e.Last)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.Last
}

// Do runs fn with the given config, retrying every error.
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, func(error) bool { return true })
}

// DoWithRetryable runs fn, retrying only errors for which isRetryable returns true.
// Context cancellation stops the loop immediately and is never retried.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	if err := config.Normalize(); err != nil {
		return err
	}
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := config.delayFor(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, lastErr, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &RetriesExceededError{Attempts: config.MaxAttempts, Last: lastErr}
}

// delayFor computes the backoff delay before the next attempt after the given
// (1-based) attempt number.
func (c Config) delayFor(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
		if delay >= float64(c.MaxDelay) {
			delay = float64(c.MaxDelay)
			break
		}
	}

	d := time.Duration(delay)
	if c.Jitter && d > 0 {
		// Uniform jitter in [d/2, d].
		half := d / 2
		d = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}
