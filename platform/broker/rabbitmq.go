// Package broker publishes domain events to RabbitMQ for downstream consumers
// (ERP import, analytics). Publishing is best-effort from the caller's view.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"orderbot_backend/platform/logger"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const maxDialDelay = 30 * time.Second

// Meta identifies an envelope on the wire.
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID *string   `json:"correlationId,omitempty"`
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope wraps data with a fresh id.
func NewEnvelope(eventType string, data any) Envelope {
	return Envelope{
		Meta: Meta{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC()},
		Data: data,
	}
}

// Publisher sends envelopes under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

// Options configures the RabbitMQ publisher.
type Options struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

// RabbitPublisher publishes to a durable topic exchange with publisher confirms.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *logger.Logger
}

// NewRabbitPublisher dials with backoff and declares the exchange.
func NewRabbitPublisher(ctx context.Context, opts Options, log *logger.Logger) (*RabbitPublisher, error) {
	conn, err := dialWithRetry(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", opts.Exchange, err)
	}

	return &RabbitPublisher{conn: conn, exchange: opts.Exchange, log: log}, nil
}

// Publish marshals msg and waits for the broker to confirm it.
func (r *RabbitPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, r.exchange, key, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Type:          msg.Meta.Type,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message " + msgID)
	}
	r.log.Info("published", "key", key, "exchange", r.exchange, "message_id", msgID)
	return nil
}

// Close closes the underlying connection.
func (r *RabbitPublisher) Close() error {
	return r.conn.Close()
}

func dialWithRetry(ctx context.Context, opts Options, log *logger.Logger) (*amqp.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Info("rabbit connected", "attempt", i)
			}
			return conn, nil
		}
		lastErr = err

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warn("rabbit dial failed", "attempt", i, "sleep", sleep, "error", err)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

// NoopPublisher drops every message. Used when AMQP_URL is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NoopPublisher) Close() error                                  { return nil }

var (
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = NoopPublisher{}
)
