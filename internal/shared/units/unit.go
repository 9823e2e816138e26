package units

import (
	"context"
	"strings"
	"time"
)

// Message kinds as delivered by the chat channel. The dedup failure policy
// and the dead-letter freshness policy are both keyed on these values.
const (
	KindText        = "text"
	KindButtonReply = "button_reply"
	KindListReply   = "list_reply"
	KindRatingReply = "rating_reply"
	KindImage       = "image"
	KindAudio       = "audio"
	KindLocation    = "location"
)

// Unit is one inbound unit of work: a single chat-channel message addressed
// to the bot. The same shape flows through live dispatch and dead-letter
// replay.
type Unit struct {
	MessageID     string
	Subject       string
	Kind          string
	Payload       []byte
	CorrelationID string
	ReceivedAt    time.Time
}

// Handler is the business-flow dispatch entry point. Live traffic and
// dead-letter replay invoke the same contract; replay is never special-cased
// here.
type Handler interface {
	Handle(ctx context.Context, u Unit) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Unit) error

func (f HandlerFunc) Handle(ctx context.Context, u Unit) error {
	return f(ctx, u)
}

// Validate reports whether the unit carries the minimum identifying fields.
func (u Unit) Validate() error {
	if strings.TrimSpace(u.MessageID) == "" {
		return ErrMissingMessageID
	}
	if strings.TrimSpace(u.Subject) == "" {
		return ErrMissingSubject
	}
	return nil
}
