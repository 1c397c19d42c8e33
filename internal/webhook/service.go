package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/pipeline"
	"orderbot_backend/internal/scheduler"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"
	"orderbot_backend/platform/phone"
)

const (
	statusStored  = "stored"
	statusIgnored = "ignored"
)

// Store is the persistence the webhook needs.
type Store interface {
	GetClientByPhone(ctx context.Context, phone string) (conversation.Client, error)
	GetOperatorByPhone(ctx context.Context, phone string) (conversation.Operator, error)
	AppendMessage(ctx context.Context, m conversation.Message) (conversation.Message, error)
}

// ServiceOptions configures ingestion.
type ServiceOptions struct {
	// LiveReplies enqueues a turn for every stored inbound message.
	LiveReplies bool
	Region      string
}

// Service stores WhatsApp messages exchanged with known clients.
type Service struct {
	store    Store
	enqueuer scheduler.TurnEnqueuer
	bus      events.Bus
	opts     ServiceOptions
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the ingestion service. enqueuer and bus may be nil.
func NewService(store Store, enqueuer scheduler.TurnEnqueuer, bus events.Bus, opts ServiceOptions, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		enqueuer: enqueuer,
		bus:      bus,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Ingest stores p when it belongs to a known client conversation. A message
// from a client is stored as received; a message the operator wrote from the
// device to a client is stored as sent. Everything else is ignored.
func (s *Service) Ingest(ctx context.Context, p MessagePayload) (IngestResponse, error) {
	text := strings.TrimSpace(p.Message.Text)
	if text == "" {
		return ignored("no text"), nil
	}

	var (
		dir    conversation.Direction
		client conversation.Client
		opID   *int64
		err    error
	)
	if p.FromMe {
		dir = conversation.DirectionSent
		client, err = s.store.GetClientByPhone(ctx, phone.Digits(p.ChatID, s.opts.Region))
		if err == nil {
			opID = s.operatorID(ctx, p.SenderID, client)
		}
	} else {
		dir = conversation.DirectionReceived
		client, err = s.store.GetClientByPhone(ctx, phone.Digits(p.SenderID, s.opts.Region))
		opID = client.OperatorID
	}
	if errors.Is(err, conversation.ErrClientNotFound) {
		return ignored("unknown party"), nil
	}
	if err != nil {
		s.log.DatabaseError("get_client_by_phone", err)
		return IngestResponse{}, apperr.Internal("client lookup failed", err).WithOp("webhook.Ingest")
	}

	sentAt := p.Timestamp
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	providerID := p.Message.ID

	stored, err := s.store.AppendMessage(ctx, conversation.Message{
		ClientID:   client.ID,
		OperatorID: opID,
		Direction:  dir,
		Content:    conversation.FlattenNewlines(text),
		SentAt:     sentAt,
		ProviderID: &providerID,
	})
	if errors.Is(err, conversation.ErrDuplicateMessage) {
		return ignored("duplicate"), nil
	}
	if err != nil {
		s.log.DatabaseError("append_message", err)
		return IngestResponse{}, apperr.Internal("failed to store message", err).WithOp("webhook.Ingest")
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.MessageIngested{
			BaseEvent:   events.NewBaseEvent(),
			MessageID:   stored.ID,
			ClientID:    client.ID,
			ClientPhone: client.Phone,
			Direction:   string(dir),
		})
	}

	resp := IngestResponse{Status: statusStored, MessageID: stored.ID}
	if dir == conversation.DirectionReceived && s.opts.LiveReplies && s.enqueuer != nil {
		err := s.enqueuer.EnqueueTurn(ctx, scheduler.ProcessTurnPayload{
			ClientPhone: client.Phone,
			MessageID:   stored.ID,
			ClientID:    client.ID,
			Content:     stored.Content,
			SentAt:      stored.SentAt,
			Source:      string(pipeline.SourceLive),
		})
		if err != nil {
			// The unattended pass still answers this message later.
			s.log.Warn("failed to enqueue live turn", "messageId", stored.ID, "error", err)
		} else {
			resp.Enqueued = true
		}
	}
	return resp, nil
}

func (s *Service) operatorID(ctx context.Context, senderID string, client conversation.Client) *int64 {
	op, err := s.store.GetOperatorByPhone(ctx, phone.Digits(senderID, s.opts.Region))
	if err == nil {
		return &op.ID
	}
	if !errors.Is(err, conversation.ErrOperatorNotFound) {
		s.log.Warn("operator lookup failed", "error", err)
	}
	return client.OperatorID
}

func ignored(reason string) IngestResponse {
	return IngestResponse{Status: statusIgnored, Reason: reason}
}
