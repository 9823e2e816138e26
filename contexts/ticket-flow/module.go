package ticketflow

import (
	"log/slog"

	breakers "porter/contexts/messaging-core/circuit-breaker/application"
	breakerports "porter/contexts/messaging-core/circuit-breaker/ports"
	sessionmemory "porter/contexts/messaging-core/session-state/adapters/memory"
	sessions "porter/contexts/messaging-core/session-state/application"
	"porter/contexts/ticket-flow/adapters/memory"
	"porter/contexts/ticket-flow/application"
	"porter/contexts/ticket-flow/ports"
)

type Module struct {
	Flow application.Flow
}

type Dependencies struct {
	Sessions  sessions.Controller
	Breakers  *breakers.Registry
	Equipment ports.EquipmentAPI
	Tickets   ports.TicketAPI
	Ratings   ports.RatingStore
	Channel   ports.ChannelClient
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Flow: application.Flow{
			Sessions:  deps.Sessions,
			Breakers:  deps.Breakers,
			Equipment: deps.Equipment,
			Tickets:   deps.Tickets,
			Ratings:   deps.Ratings,
			Channel:   deps.Channel,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires the flow against in-memory collaborators, seeded
// with the given equipment registry entries.
func NewInMemoryModule(logger *slog.Logger, equipment ...ports.Equipment) Module {
	return NewModule(Dependencies{
		Sessions:  sessions.Controller{Repo: sessionmemory.NewStore()},
		Breakers:  breakers.NewRegistry(breakerports.Config{}, nil, logger),
		Equipment: memory.NewEquipmentDirectory(equipment...),
		Tickets:   memory.NewTicketDesk(),
		Ratings:   memory.NewRatingBook(),
		Channel:   memory.NewOutbox(),
		Logger:    logger,
	})
}
