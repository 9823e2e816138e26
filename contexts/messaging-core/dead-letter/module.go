package deadletter

import (
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dead-letter/adapters/memory"
	"porter/contexts/messaging-core/dead-letter/application"
	"porter/contexts/messaging-core/dead-letter/ports"
	"porter/internal/shared/units"
)

type Module struct {
	Service application.Service
	Store   *memory.Store
}

type Dependencies struct {
	Repository   ports.Repository
	IDs          ports.IDGenerator
	Clock        ports.Clock
	MaxRetries   int
	FirstBackoff time.Duration
	BackoffBase  int
	MaxBackoff   time.Duration
	Logger       *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Service: application.Service{
			Repo:         deps.Repository,
			IDs:          deps.IDs,
			Clock:        deps.Clock,
			MaxRetries:   deps.MaxRetries,
			FirstBackoff: deps.FirstBackoff,
			BackoffBase:  deps.BackoffBase,
			MaxBackoff:   deps.MaxBackoff,
			Logger:       deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:   store,
		MaxRetries:   3,
		FirstBackoff: time.Minute,
		BackoffBase:  5,
		Logger:       logger,
	})
	module.Store = store
	return module
}

// DefaultFreshness is the reviewed table of perishable payload kinds: media
// references expire at the vendor 24 hours after delivery, so retrying older
// entries is pointless.
func DefaultFreshness() map[string]time.Duration {
	return map[string]time.Duration{
		units.KindImage: 24 * time.Hour,
		units.KindAudio: 24 * time.Hour,
	}
}
