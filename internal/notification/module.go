// Package notification subscribes side effects to order events: archiving
// finalized files and forwarding confirmed orders to the message broker.
// Domain modules publish events and never talk to these outputs directly.
package notification

import (
	"context"
	"errors"

	"orderbot_backend/internal/events"
	"orderbot_backend/internal/storage"
	"orderbot_backend/platform/broker"
	"orderbot_backend/platform/logger"
)

const defaultRoutingKey = "orders.order.confirmed"

// OrderArchiver stores finalized order files and returns download links.
type OrderArchiver interface {
	ArchiveOrder(ctx context.Context, e events.OrderConfirmed) ([]storage.PresignedURL, error)
}

// Module wires notification handlers to the event bus.
type Module struct {
	archiver   OrderArchiver
	publisher  broker.Publisher
	routingKey string
	log        *logger.Logger
}

// New creates the module. archiver and publisher are optional.
func New(archiver OrderArchiver, publisher broker.Publisher, routingKey string, log *logger.Logger) *Module {
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}
	return &Module{
		archiver:   archiver,
		publisher:  publisher,
		routingKey: routingKey,
		log:        log,
	}
}

// RegisterHandlers subscribes to order and conversation events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	if m.archiver != nil || m.publisher != nil {
		bus.Subscribe(events.OrderConfirmed{}.EventName(), events.HandlerFunc(m.handleOrderConfirmed))
	}
	bus.Subscribe(events.MessageIngested{}.EventName(), events.HandlerFunc(m.handleMessageIngested))
}

// handleOrderConfirmed archives the order files first so the published
// envelope can link to them. A partial archive still publishes.
func (m *Module) handleOrderConfirmed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.OrderConfirmed)
	if !ok {
		return nil
	}

	var (
		files      []storage.PresignedURL
		archiveErr error
	)
	if m.archiver != nil {
		files, archiveErr = m.archiver.ArchiveOrder(ctx, e)
		if archiveErr != nil {
			m.log.Warn("order archive incomplete", "clientId", e.ClientID, "error", archiveErr)
		}
	}
	if m.publisher == nil {
		return archiveErr
	}

	env := broker.NewEnvelope(e.EventName(), orderConfirmedPayload{
		ClientCode:  e.ClientCode,
		ClientName:  e.ClientName,
		ClientPhone: e.ClientPhone,
		OperatorID:  e.OperatorID,
		Lines:       toPayloadLines(e),
		Files:       toPayloadFiles(files),
		ConfirmedAt: e.OccurredAt(),
	})
	if id := e.EventID(); id != "" {
		env.Meta.CorrelationID = &id
	}
	if err := m.publisher.Publish(ctx, m.routingKey, env); err != nil {
		m.log.Error("failed to publish confirmed order", "clientId", e.ClientID, "error", err)
		return errors.Join(archiveErr, err)
	}
	m.log.Info("confirmed order published", "clientId", e.ClientID, "envelopeId", env.Meta.ID, "files", len(files))
	return archiveErr
}

func (m *Module) handleMessageIngested(_ context.Context, event events.Event) error {
	e, ok := event.(events.MessageIngested)
	if !ok {
		return nil
	}
	m.log.Debug("message ingested", "messageId", e.MessageID, "clientId", e.ClientID, "direction", e.Direction)
	return nil
}
