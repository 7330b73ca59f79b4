// Package retry provides bounded retry with exponential backoff and jitter
// for request/response calls to upstream providers.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls retry behavior.
type Config struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap applied after multiplication
	Multiplier  float64
	Jitter      float64 // fraction of the delay randomized in both directions (0-1)
}

// DefaultConfig returns the retry policy used for provider HTTP calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// Transient marks an error as worth retrying. Errors not wrapped in
// Transient abort the retry loop immediately.
type Transient struct {
	Err error
}

func (e *Transient) Error() string { return e.Err.Error() }
func (e *Transient) Unwrap() error { return e.Err }

// Mark wraps err as transient.
func Mark(err error) error { return &Transient{Err: err} }

// IsTransient reports whether err was marked transient.
func IsTransient(err error) bool {
	var t *Transient
	return errors.As(err, &t)
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts.
// It stops early on success, on a non-transient error, or when ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(Delay(cfg, attempt)):
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// Delay computes the backoff before the given attempt (attempt >= 1).
func Delay(cfg Config, attempt int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = float64(cfg.BaseDelay)
	}
	return time.Duration(d)
}
