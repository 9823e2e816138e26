package application

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "porter/contexts/messaging-core/circuit-breaker/domain/errors"
	"porter/contexts/messaging-core/circuit-breaker/ports"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

var errDependency = errors.New("dependency down")

func failing(context.Context) error { return errDependency }

func succeeding(context.Context) error { return nil }

func newTestBreaker(clock *fakeClock) *Breaker {
	return NewBreaker("equipment-api", ports.Config{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
	}, clock, nil)
}

func TestClosedToOpenAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		if allowed, _ := breaker.CanExecute(); !allowed {
			t.Fatalf("call %d should be allowed while closed", i+1)
		}
		if err := breaker.Execute(context.Background(), failing, nil); !errors.Is(err, errDependency) {
			t.Fatalf("expected dependency error, got %v", err)
		}
	}

	if allowed, reason := breaker.CanExecute(); allowed || reason == "" {
		t.Fatal("breaker must refuse immediately after the third failure")
	}
	if got := breaker.Snapshot().State; got != ports.StateOpen {
		t.Fatalf("expected open, got %s", got)
	}
}

func TestOpenExecuteWithoutFallback(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}

	called := false
	err := breaker.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	}, nil)
	if !errors.Is(err, domainerrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestOpenExecuteUsesFallback(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}

	fallbackRan := false
	err := breaker.Execute(context.Background(), failing, func(context.Context) error {
		fallbackRan = true
		return nil
	})
	if err != nil {
		t.Fatalf("fallback result should be returned, got %v", err)
	}
	if !fallbackRan {
		t.Fatal("fallback must run while open")
	}
	// Fallback execution never drives the state machine.
	if got := breaker.Snapshot().State; got != ports.StateOpen {
		t.Fatalf("expected breaker to stay open, got %s", got)
	}
}

func TestLazyHalfOpenAfterCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}

	clock.advance(59 * time.Second)
	if allowed, _ := breaker.CanExecute(); allowed {
		t.Fatal("breaker must stay open before cooldown elapses")
	}

	clock.advance(2 * time.Second)
	if allowed, _ := breaker.CanExecute(); !allowed {
		t.Fatal("breaker must probe after cooldown")
	}
	if got := breaker.Snapshot().State; got != ports.StateHalfOpen {
		t.Fatalf("expected half_open, got %s", got)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}
	clock.advance(2 * time.Minute)

	if err := breaker.Execute(context.Background(), succeeding, nil); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}
	if got := breaker.Snapshot().State; got != ports.StateHalfOpen {
		t.Fatalf("one success must not close, state %s", got)
	}

	if err := breaker.Execute(context.Background(), succeeding, nil); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if got := breaker.Snapshot().State; got != ports.StateClosed {
		t.Fatalf("expected closed after two successes, got %s", got)
	}
}

func TestHalfOpenReopensOnSingleFailure(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}
	clock.advance(2 * time.Minute)

	if err := breaker.Execute(context.Background(), succeeding, nil); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	_ = breaker.Execute(context.Background(), failing, nil)

	if got := breaker.Snapshot().State; got != ports.StateOpen {
		t.Fatalf("expected reopen on half-open failure, got %s", got)
	}
}

func TestResetReturnsToClosed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	breaker := newTestBreaker(clock)
	for i := 0; i < 3; i++ {
		_ = breaker.Execute(context.Background(), failing, nil)
	}

	breaker.Reset()
	if got := breaker.Snapshot().State; got != ports.StateClosed {
		t.Fatalf("expected closed after reset, got %s", got)
	}
	if allowed, _ := breaker.CanExecute(); !allowed {
		t.Fatal("reset breaker must allow calls")
	}
}
