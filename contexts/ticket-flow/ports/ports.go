package ports

import "context"

// Breaker names for the flow's outbound dependencies.
const (
	BreakerEquipmentAPI = "equipment-api"
	BreakerTicketAPI    = "ticket-api"
	BreakerRatingStore  = "rating-store"
)

// Equipment is one registered piece of serviceable equipment.
type Equipment struct {
	Ref      string
	Name     string
	Location string
}

// TicketRequest describes the support ticket to open.
type TicketRequest struct {
	Subject      string
	EquipmentRef string
	Description  string
}

// Ticket is the opened support ticket.
type Ticket struct {
	TicketID string
	Status   string
}

// EquipmentAPI resolves equipment references against the asset registry.
type EquipmentAPI interface {
	Lookup(ctx context.Context, ref string) (Equipment, error)
}

// TicketAPI opens tickets in the upstream desk system.
type TicketAPI interface {
	CreateTicket(ctx context.Context, req TicketRequest) (Ticket, error)
}

// RatingStore records the closing satisfaction rating. Writes must be
// treated as non-idempotent.
type RatingStore interface {
	SaveRating(ctx context.Context, subject string, score int, comment string) error
}

// ChannelClient sends outbound text on the chat channel.
type ChannelClient interface {
	SendText(ctx context.Context, subject string, text string) error
}
