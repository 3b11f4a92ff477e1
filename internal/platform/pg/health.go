package pg

import (
	"context"
	"fmt"
	"time"

	"dyncron/pkg/retry"
)

// HealthCheckOptions contains options for waiting on database readiness.
type HealthCheckOptions struct {
	// MaxRetries is the maximum number of connection attempts.
	MaxRetries int
	// InitialInterval is the delay after the first failed attempt.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
	// PingTimeout bounds each individual attempt.
	PingTimeout time.Duration
	// OnRetry is invoked after each failed attempt for observability.
	OnRetry func(attempt int, err error, nextDelay time.Duration)
}

// DefaultHealthCheckOptions returns readiness-wait options suitable for a
// service starting alongside its database.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB blocks until the database at dsn accepts connections, retrying
// with exponential backoff. Returns an error when attempts are exhausted or
// ctx is done.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	cfg := retry.Config{
		MaxAttempts:  opts.MaxRetries,
		InitialDelay: opts.InitialInterval,
		MaxDelay:     opts.MaxInterval,
		Multiplier:   2.0,
		Jitter:       true,
		OnRetry:      opts.OnRetry,
	}

	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()

		pool, err := NewPoolWithOptions(attemptCtx, dsn, PoolOptions{
			MaxConns:          1,
			MinConns:          0,
			HealthCheckPeriod: time.Minute,
			MaxConnLifetime:   time.Minute,
			MaxConnIdleTime:   time.Minute,
			PingTimeout:       opts.PingTimeout,
		})
		if err != nil {
			return err
		}
		pool.Close()
		return nil
	})
	if err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	return nil
}
