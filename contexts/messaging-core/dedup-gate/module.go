package dedupgate

import (
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dedup-gate/adapters/memory"
	"porter/contexts/messaging-core/dedup-gate/application"
	"porter/contexts/messaging-core/dedup-gate/ports"
	"porter/internal/shared/units"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Repository ports.Repository
	Cache      ports.SeenCache
	Policies   ports.PolicyTable
	Clock      ports.Clock
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Repo:     deps.Repository,
			Cache:    deps.Cache,
			Policies: deps.Policies,
			Clock:    deps.Clock,
			CacheTTL: deps.CacheTTL,
			Logger:   deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository: store,
		Cache:      memory.NewCache(),
		Policies:   DefaultPolicies(),
		CacheTTL:   30 * time.Minute,
		Logger:     logger,
	})
	module.Store = store
	return module
}

// DefaultPolicies is the reviewed failure-policy table. Rating replies feed a
// non-idempotent side effect (the rating is recorded exactly once), so they
// fail closed; every other kind prefers duplicate processing over loss.
func DefaultPolicies() ports.PolicyTable {
	return ports.PolicyTable{
		Default: ports.FailOpen,
		ByKind: map[string]ports.FailurePolicy{
			units.KindRatingReply: ports.FailClosed,
		},
	}
}
