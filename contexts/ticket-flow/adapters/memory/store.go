package memory

import (
	"context"
	"fmt"
	"sync"

	domainerrors "porter/contexts/ticket-flow/domain/errors"
	"porter/contexts/ticket-flow/ports"
)

// EquipmentDirectory is the in-memory asset registry used by tests and the
// in-memory composition.
type EquipmentDirectory struct {
	mu       sync.Mutex
	byRef    map[string]ports.Equipment
	FailNext error
}

func NewEquipmentDirectory(equipment ...ports.Equipment) *EquipmentDirectory {
	byRef := make(map[string]ports.Equipment, len(equipment))
	for _, e := range equipment {
		byRef[e.Ref] = e
	}
	return &EquipmentDirectory{byRef: byRef}
}

func (d *EquipmentDirectory) Lookup(_ context.Context, ref string) (ports.Equipment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNext != nil {
		err := d.FailNext
		d.FailNext = nil
		return ports.Equipment{}, err
	}
	equipment, ok := d.byRef[ref]
	if !ok {
		return ports.Equipment{}, domainerrors.ErrUnknownEquipment
	}
	return equipment, nil
}

// TicketDesk assigns sequential ticket ids.
type TicketDesk struct {
	mu       sync.Mutex
	next     int
	Opened   []ports.TicketRequest
	FailNext error
}

func NewTicketDesk() *TicketDesk {
	return &TicketDesk{}
}

func (d *TicketDesk) CreateTicket(_ context.Context, req ports.TicketRequest) (ports.Ticket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailNext != nil {
		err := d.FailNext
		d.FailNext = nil
		return ports.Ticket{}, err
	}
	d.next++
	d.Opened = append(d.Opened, req)
	return ports.Ticket{TicketID: fmt.Sprintf("TCK-%04d", d.next), Status: "open"}, nil
}

// RatingBook records one rating per save call.
type RatingBook struct {
	mu       sync.Mutex
	Saved    []SavedRating
	FailNext error
}

type SavedRating struct {
	Subject string
	Score   int
	Comment string
}

func NewRatingBook() *RatingBook {
	return &RatingBook{}
}

func (b *RatingBook) SaveRating(_ context.Context, subject string, score int, comment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailNext != nil {
		err := b.FailNext
		b.FailNext = nil
		return err
	}
	b.Saved = append(b.Saved, SavedRating{Subject: subject, Score: score, Comment: comment})
	return nil
}

// Outbox captures outbound channel sends.
type Outbox struct {
	mu   sync.Mutex
	Sent []SentText
}

type SentText struct {
	Subject string
	Text    string
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) SendText(_ context.Context, subject string, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Sent = append(o.Sent, SentText{Subject: subject, Text: text})
	return nil
}

func (o *Outbox) Texts() []SentText {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]SentText(nil), o.Sent...)
}
