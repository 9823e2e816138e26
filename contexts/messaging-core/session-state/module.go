package sessionstate

import (
	"log/slog"
	"time"

	"porter/contexts/messaging-core/session-state/adapters/memory"
	"porter/contexts/messaging-core/session-state/application"
	"porter/contexts/messaging-core/session-state/ports"
)

type Module struct {
	Controller application.Controller
	Store      *memory.Store
}

type Dependencies struct {
	Repository  ports.Repository
	Clock       ports.Clock
	MaxAttempts int
	BackoffBase time.Duration
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Controller: application.Controller{
			Repo:        deps.Repository,
			Clock:       deps.Clock,
			MaxAttempts: deps.MaxAttempts,
			BackoffBase: deps.BackoffBase,
			Logger:      deps.Logger,
		},
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository:  store,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Logger:      logger,
	})
	module.Store = store
	return module
}
