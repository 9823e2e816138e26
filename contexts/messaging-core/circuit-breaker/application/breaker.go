package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainerrors "porter/contexts/messaging-core/circuit-breaker/domain/errors"
	"porter/contexts/messaging-core/circuit-breaker/ports"
)

// Breaker tracks one named dependency's health. State is process-local and
// best effort: it protects the current execution instance only.
type Breaker struct {
	name   string
	cfg    ports.Config
	clock  ports.Clock
	logger *slog.Logger

	mu                   sync.Mutex
	state                ports.State
	consecutiveFailures  int
	consecutiveSuccesses int
	changedAt            time.Time
}

func NewBreaker(name string, cfg ports.Config, clock ports.Clock, logger *slog.Logger) *Breaker {
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:      name,
		cfg:       cfg.Normalized(),
		clock:     clock,
		logger:    logger,
		state:     ports.StateClosed,
		changedAt: clock.Now(),
	}
}

// CanExecute reports whether a call may proceed right now. Calling it while
// OPEN and past the cooldown performs the lazy OPEN -> HALF_OPEN transition.
func (b *Breaker) CanExecute() (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case ports.StateClosed, ports.StateHalfOpen:
		return true, ""
	default:
		if b.clock.Now().Sub(b.changedAt) >= b.cfg.Cooldown {
			b.transition(ports.StateHalfOpen)
			return true, ""
		}
		return false, fmt.Sprintf("circuit %q open, cooling down", b.name)
	}
}

// Execute runs fn under the breaker. When the breaker refuses the call and a
// fallback is supplied, the fallback's result is returned without touching
// fn or the counters; with no fallback, ErrCircuitOpen is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error, fallback func(context.Context) error) error {
	allowed, _ := b.CanExecute()
	if !allowed {
		if fallback != nil {
			return fallback(ctx)
		}
		return fmt.Errorf("%s: %w", b.name, domainerrors.ErrCircuitOpen)
	}

	err := fn(ctx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.consecutiveFailures++

	switch b.state {
	case ports.StateHalfOpen:
		// A single failure while probing reopens immediately.
		b.transition(ports.StateOpen)
	case ports.StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transition(ports.StateOpen)
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++

	if b.state == ports.StateHalfOpen && b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
		b.transition(ports.StateClosed)
	}
}

// transition requires b.mu held.
func (b *Breaker) transition(next ports.State) {
	if b.state == next {
		return
	}
	previous := b.state
	b.state = next
	b.changedAt = b.clock.Now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0

	b.logger.Info("circuit breaker state change",
		"event", "circuit_state_change",
		"module", "messaging-core/circuit-breaker",
		"layer", "application",
		"dependency", b.name,
		"from", string(previous),
		"to", string(next),
	)
}

// Reset forces the breaker back to CLOSED with cleared counters. Test/ops
// hook only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = ports.StateClosed
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.changedAt = b.clock.Now()
}

func (b *Breaker) Snapshot() ports.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ports.Snapshot{
		Name:                 b.name,
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastStateChange:      b.changedAt,
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
