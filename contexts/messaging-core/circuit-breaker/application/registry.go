package application

import (
	"log/slog"
	"sort"
	"sync"

	"porter/contexts/messaging-core/circuit-breaker/ports"
)

// Registry hands out one breaker per named dependency, created lazily. It is
// the only intentional mutable registry in the core; construct it once in the
// composition root and pass it by reference.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults ports.Config
	clock    ports.Clock
	logger   *slog.Logger
}

func NewRegistry(defaults ports.Config, clock ports.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults.Normalized(),
		clock:    clock,
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it with the registry defaults
// on first use.
func (r *Registry) Get(name string) *Breaker {
	return r.GetWith(name, r.defaults)
}

// GetWith returns the breaker for name, creating it with cfg on first use.
// An existing breaker keeps its original configuration.
func (r *Registry) GetWith(name string, cfg ports.Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[name]; ok {
		return breaker
	}
	breaker := NewBreaker(name, cfg, r.clock, r.logger)
	r.breakers[name] = breaker
	return breaker
}

// Reset clears the named breaker back to CLOSED. Unknown names are a no-op.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	breaker, ok := r.breakers[name]
	r.mu.Unlock()
	if ok {
		breaker.Reset()
	}
}

// ResetAll is the test/ops hook for a clean slate.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		breakers = append(breakers, breaker)
	}
	r.mu.Unlock()

	for _, breaker := range breakers {
		breaker.Reset()
	}
}

// Snapshots lists every breaker's state, ordered by name for stable output.
func (r *Registry) Snapshots() []ports.Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, breaker := range r.breakers {
		breakers = append(breakers, breaker)
	}
	r.mu.Unlock()

	snapshots := make([]ports.Snapshot, 0, len(breakers))
	for _, breaker := range breakers {
		snapshots = append(snapshots, breaker.Snapshot())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name < snapshots[j].Name
	})
	return snapshots
}
