package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"porter/contexts/messaging-core/dispatch/application"
	"porter/internal/shared/units"

	"github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL           string
	Queue         string
	ConsumerTag   string
	PrefetchCount int
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("amqp url is required")
	}
	if strings.TrimSpace(c.Queue) == "" {
		return fmt.Errorf("amqp queue is required")
	}
	return nil
}

// inboundMessage is the wire shape of one chat-channel delivery.
type inboundMessage struct {
	MessageID     string          `json:"message_id"`
	Subject       string          `json:"subject"`
	Kind          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}

// Consumer reads chat-channel deliveries and feeds them to the dispatch
// pipeline, one goroutine per unit. Every delivery is acked regardless of
// outcome: the pipeline owns failure handling, and a broker redelivery would
// only feed the dedup gate another duplicate.
type Consumer struct {
	cfg      Config
	pipeline application.Pipeline
	logger   *slog.Logger

	conn    *amqp091.Connection
	ch      *amqp091.Channel
	deliver <-chan amqp091.Delivery
	closed  chan struct{}
	wg      sync.WaitGroup
}

func NewConsumer(cfg Config, pipeline application.Pipeline, logger *slog.Logger) (*Consumer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "porter-bot"
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{cfg: cfg, pipeline: pipeline, logger: logger, closed: make(chan struct{})}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp091.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("set prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("consume queue: %w", err)
	}
	c.conn, c.ch, c.deliver = conn, ch, deliveries

	c.wg.Add(1)
	go c.readLoop(ctx)
	return nil
}

func (c *Consumer) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	if c.ch != nil {
		_ = c.ch.Cancel(c.cfg.ConsumerTag, false)
	}
	c.wg.Wait()
	var errs []string
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close consumer: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Consumer) readLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case d, ok := <-c.deliver:
			if !ok {
				return
			}
			c.wg.Add(1)
			go func(d amqp091.Delivery) {
				defer c.wg.Done()
				c.handleDelivery(ctx, d)
			}(d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp091.Delivery) {
	defer func() {
		if err := d.Ack(false); err != nil {
			c.logger.Warn("delivery ack failed",
				"event", "channel_ack_failed",
				"module", "messaging-core/dispatch",
				"layer", "adapter",
				"delivery_tag", d.DeliveryTag,
				"error", err.Error(),
			)
		}
	}()

	unit, err := parseDelivery(d)
	if err != nil {
		c.logger.Warn("malformed channel delivery dropped",
			"event", "channel_delivery_malformed",
			"module", "messaging-core/dispatch",
			"layer", "adapter",
			"delivery_tag", d.DeliveryTag,
			"error", err.Error(),
		)
		return
	}
	c.pipeline.Dispatch(ctx, unit)
}

func parseDelivery(d amqp091.Delivery) (units.Unit, error) {
	var msg inboundMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		return units.Unit{}, fmt.Errorf("unmarshal delivery body: %w", err)
	}
	// Field-level validation is the pipeline's job; only undecodable bodies
	// are dropped here.
	return units.Unit{
		MessageID:     msg.MessageID,
		Subject:       msg.Subject,
		Kind:          msg.Kind,
		Payload:       msg.Payload,
		CorrelationID: msg.CorrelationID,
		ReceivedAt:    time.Now().UTC(),
	}, nil
}
