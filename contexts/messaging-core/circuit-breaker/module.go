package circuitbreaker

import (
	"log/slog"

	"porter/contexts/messaging-core/circuit-breaker/application"
	"porter/contexts/messaging-core/circuit-breaker/ports"
)

type Module struct {
	Registry *application.Registry
}

type Dependencies struct {
	Defaults ports.Config
	Clock    ports.Clock
	Logger   *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Registry: application.NewRegistry(deps.Defaults, deps.Clock, deps.Logger),
	}
}
