package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// outboundText is the wire shape of one outbound chat message.
type outboundText struct {
	Subject string    `json:"subject"`
	Text    string    `json:"text"`
	SentAt  time.Time `json:"sent_at"`
}

// AMQPChannel publishes outbound chat text to the channel gateway's queue.
// It satisfies the ChannelClient contracts of the dispatch pipeline and the
// ticket flow.
type AMQPChannel struct {
	mu     sync.Mutex
	ch     *amqp091.Channel
	queue  string
	logger *slog.Logger
}

func NewAMQPChannel(conn *amqp091.Connection, queue string, logger *slog.Logger) (*AMQPChannel, error) {
	if queue == "" {
		queue = "porter.outbound"
	}
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare outbound queue: %w", err)
	}
	return &AMQPChannel{ch: ch, queue: queue, logger: logger}, nil
}

func (c *AMQPChannel) SendText(ctx context.Context, subject string, text string) error {
	body, err := json.Marshal(outboundText{
		Subject: subject,
		Text:    text,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbound text: %w", err)
	}

	// amqp091 channels are not safe for concurrent publishes.
	c.mu.Lock()
	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body,
	})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish outbound text: %w", err)
	}

	c.logger.Debug("outbound text published",
		"event", "channel_text_sent",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"subject", subject,
	)
	return nil
}

func (c *AMQPChannel) Close() error {
	return c.ch.Close()
}

// LogChannel is the no-broker stand-in: it logs instead of sending. Used by
// the in-memory composition and the worker process, where replays may need a
// channel client but no gateway is attached.
type LogChannel struct {
	Logger *slog.Logger
}

func (c LogChannel) SendText(_ context.Context, subject string, text string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outbound text (no channel gateway attached)",
		"event", "channel_text_logged",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"subject", subject,
		"text", text,
	)
	return nil
}
