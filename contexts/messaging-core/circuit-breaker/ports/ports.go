package ports

import "time"

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config drives one breaker's state machine.
type Config struct {
	// FailureThreshold consecutive failures move CLOSED to OPEN.
	FailureThreshold int
	// SuccessThreshold consecutive successes move HALF_OPEN back to CLOSED.
	SuccessThreshold int
	// Cooldown is how long OPEN lasts before the next call probes HALF_OPEN.
	// The transition is evaluated lazily on the next call, not by a timer.
	Cooldown time.Duration
}

func (c Config) Normalized() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	return c
}

// Snapshot is the read-only view of one breaker for diagnostics.
type Snapshot struct {
	Name                 string
	State                State
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastStateChange      time.Time
}

type Clock interface {
	Now() time.Time
}
