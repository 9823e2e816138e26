package dispatch

import (
	"log/slog"
	"time"

	"porter/contexts/messaging-core/dispatch/application"
	"porter/contexts/messaging-core/dispatch/ports"
)

type Module struct {
	Pipeline application.Pipeline
}

type Dependencies struct {
	Limiter     ports.Limiter
	Gate        ports.Gate
	Handler     ports.Handler
	DeadLetters ports.FailureSink
	Channel     ports.ChannelClient
	UnitBudget  time.Duration
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Pipeline: application.Pipeline{
			Limiter:     deps.Limiter,
			Gate:        deps.Gate,
			Handler:     deps.Handler,
			DeadLetters: deps.DeadLetters,
			Channel:     deps.Channel,
			UnitBudget:  deps.UnitBudget,
			Logger:      deps.Logger,
		},
	}
}
