// Package resilience provides fault tolerance patterns for external service calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"leadestate_server/pkg/logger"

	"github.com/sony/gobreaker"
)

// Errors returned by the guard.
var (
	ErrCircuitOpen    = gobreaker.ErrOpenState
	ErrTooManyRequest = gobreaker.ErrTooManyRequests
)

// GuardConfig holds configuration for a Guard.
type GuardConfig struct {
	Name                string        // breaker name for logging
	CallTimeout         time.Duration // hard deadline per attempt (0 = none)
	MaxRetries          int           // retries after the first attempt
	BaseBackoff         time.Duration // first retry delay, doubled per retry
	MaxBackoff          time.Duration
	ConsecutiveFailures uint32        // trips the breaker
	OpenTimeout         time.Duration // open -> half-open
	HalfOpenRequests    uint32
}

// DefaultGuardConfig returns the settings used for oracle calls.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:                name,
		CallTimeout:         30 * time.Second,
		MaxRetries:          2,
		BaseBackoff:         500 * time.Millisecond,
		MaxBackoff:          5 * time.Second,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// Guard combines a per-call deadline, bounded retry with exponential backoff
// and a gobreaker circuit. Each attempt counts against the breaker.
type Guard struct {
	cfg     GuardConfig
	breaker *gobreaker.CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGuard creates a new guard with the given config.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the remote side
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &Guard{
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(settings),
		sleep:   sleepContext,
	}
}

// Name returns the guard name.
func (g *Guard) Name() string {
	return g.cfg.Name
}

// State returns the breaker state as a string.
func (g *Guard) State() string {
	return g.breaker.State().String()
}

// Counts returns the breaker counters for the current generation.
func (g *Guard) Counts() gobreaker.Counts {
	return g.breaker.Counts()
}

// Execute runs fn under the guard. fn receives a context carrying the
// per-attempt deadline.
func (g *Guard) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
				return err
			}
		}

		_, err := g.breaker.Execute(func() (interface{}, error) {
			callCtx := ctx
			if g.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, g.cfg.CallTimeout)
				defer cancel()
			}
			return nil, fn(callCtx)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			return err
		}
		logger.Debug("[Guard] %s attempt %d failed: %v", g.cfg.Name, attempt+1, err)
	}

	return lastErr
}

func (g *Guard) backoff(attempt int) time.Duration {
	d := g.cfg.BaseBackoff << uint(attempt-1)
	if d > g.cfg.MaxBackoff || d <= 0 {
		return g.cfg.MaxBackoff
	}
	return d
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var perm *PermanentError
	return !errors.As(err, &perm)
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the guard stops retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
