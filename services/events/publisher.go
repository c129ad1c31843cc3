// Package events announces booking lifecycle changes on a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"demobook/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const ExchangeKind = "topic"

// BookingEvent is the JSON body of every lifecycle message.
type BookingEvent struct {
	EventID    string                `json:"eventId"`
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurredAt"`
	Outcome    models.BookingOutcome `json:"outcome"`
}

// RoutingKey is booking.<status> in lower case, e.g. booking.partiallyfulfilled.
func RoutingKey(status models.BookingStatus) string {
	return "booking." + strings.ToLower(string(status))
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes booking outcomes to a durable topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	now      func() time.Time
	logger   *zap.Logger
}

func NewAMQPPublisher(url, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	logger.Info("Connected to RabbitMQ", zap.String("exchange", exchange))
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, now: time.Now, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, out models.BookingOutcome) error {
	ev := BookingEvent{
		EventID:    uuid.NewString(),
		Type:       RoutingKey(out.Status),
		OccurredAt: p.now().UTC(),
		Outcome:    out,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.logger.Debug("Published booking event", zap.String("routingKey", ev.Type), zap.String("bookingId", out.BookingID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher stands in when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, out models.BookingOutcome) error {
	p.logger.Info("Booking event",
		zap.String("routingKey", RoutingKey(out.Status)),
		zap.String("bookingId", out.BookingID))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
