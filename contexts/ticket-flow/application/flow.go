package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	breakers "porter/contexts/messaging-core/circuit-breaker/application"
	sessions "porter/contexts/messaging-core/session-state/application"
	sessionerrors "porter/contexts/messaging-core/session-state/domain/errors"
	sessionports "porter/contexts/messaging-core/session-state/ports"
	domainerrors "porter/contexts/ticket-flow/domain/errors"
	"porter/contexts/ticket-flow/ports"
	"porter/internal/shared/faults"
	"porter/internal/shared/units"
)

const (
	greeting      = "Hi! To open a support ticket, send the equipment reference printed on the label."
	unknownReply  = "We couldn't find equipment %q. Please check the label and send the reference again."
	askIssue      = "Found %s (%s). Briefly describe the problem."
	emptyIssue    = "Please describe the problem in a short message."
	ticketOpened  = "Ticket %s opened. When it's resolved, rate our service from 1 to 5."
	badRating     = "Please rate from 1 (poor) to 5 (great)."
	ratingThanks  = "Thanks for the feedback! Send a new equipment reference anytime to open another ticket."
	busyEquipment = "Our equipment registry is briefly unavailable. Please try again in a minute."
)

// payloadBody is the superset of fields across inbound payload shapes.
type payloadBody struct {
	Text    string `json:"text"`
	Title   string `json:"title"`
	Score   *int   `json:"score"`
	Comment string `json:"comment"`
}

// Flow is the conversational ticket-opening handler. It is the business
// endpoint behind the dispatch pipeline: session transitions go through the
// optimistic-concurrency controller and every outbound call runs under the
// named circuit breaker for that dependency.
type Flow struct {
	Sessions  sessions.Controller
	Breakers  *breakers.Registry
	Equipment ports.EquipmentAPI
	Tickets   ports.TicketAPI
	Ratings   ports.RatingStore
	Channel   ports.ChannelClient
	Logger    *slog.Logger
}

func (f Flow) Handle(ctx context.Context, unit units.Unit) error {
	session, err := f.Sessions.Read(ctx, unit.Subject)
	if errors.Is(err, sessionerrors.ErrSessionNotFound) {
		return f.startConversation(ctx, unit)
	}
	if err != nil {
		return err
	}

	switch session.StateCode {
	case sessionports.StateNew, sessionports.StateClosed:
		return f.reopenConversation(ctx, unit)
	case sessionports.StateAwaitEquipment:
		return f.handleEquipment(ctx, unit)
	case sessionports.StateAwaitIssue:
		return f.handleIssue(ctx, unit, session)
	case sessionports.StateAwaitRating:
		return f.handleRating(ctx, unit)
	default:
		return faults.Validation(fmt.Errorf("session %s in unknown state %q", unit.Subject, session.StateCode))
	}
}

func (f Flow) startConversation(ctx context.Context, unit units.Unit) error {
	_, err := f.Sessions.Create(ctx, sessionports.Session{
		Subject:   unit.Subject,
		StateCode: sessionports.StateAwaitEquipment,
	})
	if err != nil {
		return err
	}
	return f.send(ctx, unit.Subject, greeting)
}

func (f Flow) reopenConversation(ctx context.Context, unit units.Unit) error {
	_, err := f.Sessions.Update(ctx, unit.Subject, "reopen", func(s sessionports.Session) (sessionports.Session, error) {
		s.StateCode = sessionports.StateAwaitEquipment
		s.EquipmentRef = ""
		s.Data = nil
		return s, nil
	})
	if err != nil {
		return err
	}
	return f.send(ctx, unit.Subject, greeting)
}

func (f Flow) handleEquipment(ctx context.Context, unit units.Unit) error {
	ref := strings.TrimSpace(textOf(unit))
	if ref == "" {
		return f.send(ctx, unit.Subject, greeting)
	}

	var equipment ports.Equipment
	degraded := false
	err := f.Breakers.Get(ports.BreakerEquipmentAPI).Execute(ctx, func(ctx context.Context) error {
		var lookupErr error
		equipment, lookupErr = f.Equipment.Lookup(ctx, ref)
		if errors.Is(lookupErr, domainerrors.ErrUnknownEquipment) {
			// Not a dependency failure; must not trip the breaker.
			equipment = ports.Equipment{}
			return nil
		}
		return lookupErr
	}, func(ctx context.Context) error {
		// Open circuit: tell the subject to come back rather than parking
		// an entry that would re-ask a stale question much later.
		degraded = true
		return f.send(ctx, unit.Subject, busyEquipment)
	})
	if err != nil || degraded {
		return err
	}
	if equipment.Ref == "" {
		return f.send(ctx, unit.Subject, fmt.Sprintf(unknownReply, ref))
	}

	_, err = f.Sessions.Update(ctx, unit.Subject, "equipment_selected", func(s sessionports.Session) (sessionports.Session, error) {
		s.StateCode = sessionports.StateAwaitIssue
		s.EquipmentRef = equipment.Ref
		return s, nil
	})
	if err != nil {
		return err
	}
	return f.send(ctx, unit.Subject, fmt.Sprintf(askIssue, equipment.Name, equipment.Location))
}

func (f Flow) handleIssue(ctx context.Context, unit units.Unit, session sessionports.Session) error {
	description := strings.TrimSpace(textOf(unit))
	if description == "" {
		return f.send(ctx, unit.Subject, emptyIssue)
	}

	var ticket ports.Ticket
	err := f.Breakers.Get(ports.BreakerTicketAPI).Execute(ctx, func(ctx context.Context) error {
		var createErr error
		ticket, createErr = f.Tickets.CreateTicket(ctx, ports.TicketRequest{
			Subject:      unit.Subject,
			EquipmentRef: session.EquipmentRef,
			Description:  description,
		})
		return createErr
	}, nil)
	if err != nil {
		// Parked and replayed: ticket creation must eventually happen.
		return err
	}

	_, err = f.Sessions.Update(ctx, unit.Subject, "ticket_opened", func(s sessionports.Session) (sessionports.Session, error) {
		s.StateCode = sessionports.StateAwaitRating
		s.Data = []byte(fmt.Sprintf(`{"ticket_id":%q}`, ticket.TicketID))
		return s, nil
	})
	if err != nil {
		return err
	}

	f.logger().Info("support ticket opened",
		"event", "ticket_opened",
		"module", "ticket-flow",
		"layer", "application",
		"subject", unit.Subject,
		"ticket_id", ticket.TicketID,
		"equipment_ref", session.EquipmentRef,
	)
	return f.send(ctx, unit.Subject, fmt.Sprintf(ticketOpened, ticket.TicketID))
}

func (f Flow) handleRating(ctx context.Context, unit units.Unit) error {
	score, comment, ok := ratingOf(unit)
	if !ok {
		return f.send(ctx, unit.Subject, badRating)
	}
	if score < 1 || score > 5 {
		return faults.Validation(fmt.Errorf("%w: got %d", domainerrors.ErrRatingOutOfRange, score))
	}

	err := f.Breakers.Get(ports.BreakerRatingStore).Execute(ctx, func(ctx context.Context) error {
		return f.Ratings.SaveRating(ctx, unit.Subject, score, comment)
	}, nil)
	if err != nil {
		return err
	}

	_, err = f.Sessions.Update(ctx, unit.Subject, "rating_recorded", func(s sessionports.Session) (sessionports.Session, error) {
		s.StateCode = sessionports.StateClosed
		return s, nil
	})
	if err != nil {
		return err
	}
	return f.send(ctx, unit.Subject, ratingThanks)
}

func (f Flow) send(ctx context.Context, subject string, text string) error {
	if f.Channel == nil {
		return nil
	}
	return f.Channel.SendText(ctx, subject, text)
}

func (f Flow) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// textOf extracts the human text from any of the inbound payload shapes.
func textOf(unit units.Unit) string {
	var body payloadBody
	if err := json.Unmarshal(unit.Payload, &body); err != nil {
		return ""
	}
	if body.Text != "" {
		return body.Text
	}
	return body.Title
}

// ratingOf accepts both the structured rating reply and a bare numeric text.
func ratingOf(unit units.Unit) (int, string, bool) {
	var body payloadBody
	if err := json.Unmarshal(unit.Payload, &body); err != nil {
		return 0, "", false
	}
	if body.Score != nil {
		return *body.Score, body.Comment, true
	}
	if unit.Kind == units.KindText {
		if score, err := strconv.Atoi(strings.TrimSpace(body.Text)); err == nil {
			return score, "", true
		}
	}
	return 0, "", false
}
