package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestGuard(cfg GuardConfig) (*Guard, *[]time.Duration) {
	g := NewGuard(cfg)
	var slept []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return g, &slept
}

func TestGuardRetriesWithBackoff(t *testing.T) {
	cfg := DefaultGuardConfig("test")
	cfg.MaxRetries = 2
	cfg.BaseBackoff = 100 * time.Millisecond
	g, slept := newTestGuard(cfg)

	calls := 0
	err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*slept) != len(expected) {
		t.Fatalf("expected %d backoffs, got %v", len(expected), *slept)
	}
	for i, d := range expected {
		if (*slept)[i] != d {
			t.Errorf("backoff %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestGuardStopsOnPermanentError(t *testing.T) {
	g, _ := newTestGuard(DefaultGuardConfig("test"))

	calls := 0
	err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestGuardAppliesCallTimeout(t *testing.T) {
	cfg := DefaultGuardConfig("test")
	cfg.CallTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 0
	g, _ := newTestGuard(cfg)

	err := g.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestGuardOpensCircuit(t *testing.T) {
	cfg := DefaultGuardConfig("test")
	cfg.MaxRetries = 0
	cfg.ConsecutiveFailures = 3
	cfg.OpenTimeout = time.Minute
	g, _ := newTestGuard(cfg)

	fail := func(ctx context.Context) error { return errors.New("down") }
	for i := 0; i < 3; i++ {
		_ = g.Execute(context.Background(), fail)
	}

	if g.State() != "open" {
		t.Fatalf("expected open state, got %s", g.State())
	}

	calls := 0
	err := g.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no call while open, got %d", calls)
	}
}
