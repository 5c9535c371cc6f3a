package database

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/acoplu/borsa-aslani/internal/config"
)

// RetryPolicy defines retry behavior for failed connection attempts
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryPolicy is used for the startup connections.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    4,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

// delay returns the wait before retry number attempt (0-based), with up to
// 25% jitter either way when enabled.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for range attempt {
		d *= p.BackoffFactor
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterEnabled {
		d += d * 0.25 * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// WithRetry runs operation until it succeeds, the policy is exhausted or ctx
// is done. The last operation error is returned.
func WithRetry(ctx context.Context, name string, policy RetryPolicy, operation func(context.Context) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logrus.WithFields(logrus.Fields{
					"operation": name,
					"attempts":  attempt + 1,
					"duration":  time.Since(start),
				}).Info("Operation recovered after retry")
			}
			return nil
		}

		if attempt == policy.MaxRetries {
			break
		}

		wait := policy.delay(attempt)
		logrus.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt + 1,
			"error":     lastErr.Error(),
			"delay":     wait,
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}

	logrus.WithFields(logrus.Fields{
		"operation": name,
		"attempts":  policy.MaxRetries + 1,
		"duration":  time.Since(start),
		"error":     lastErr.Error(),
	}).Error("Operation failed after all retries")
	return lastErr
}

// NewPostgresConnectionWithRetry retries NewPostgresConnection under policy.
func NewPostgresConnectionWithRetry(ctx context.Context, cfg config.DatabaseConfig, policy RetryPolicy) (*PostgresDB, error) {
	var db *PostgresDB
	err := WithRetry(ctx, "postgres_connect", policy, func(ctx context.Context) error {
		var err error
		db, err = NewPostgresConnection(ctx, cfg)
		return err
	})
	return db, err
}

// NewRedisConnectionWithRetry retries NewRedisConnection under policy.
func NewRedisConnectionWithRetry(ctx context.Context, cfg config.RedisConfig, policy RetryPolicy) (*RedisClient, error) {
	var rdb *RedisClient
	err := WithRetry(ctx, "redis_connect", policy, func(ctx context.Context) error {
		var err error
		rdb, err = NewRedisConnection(ctx, cfg)
		return err
	})
	return rdb, err
}
