// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"orderbot_backend/internal/orders"
	"orderbot_backend/platform/events"
	"orderbot_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// InMemoryBus is the process-local bus every binary uses.
type InMemoryBus = events.InMemoryBus

var NewBaseEvent = events.NewBaseEvent

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Order Domain Events
// =============================================================================

// OrderConfirmed is published after a client confirmed a draft and the
// operator was notified.
type OrderConfirmed struct {
	BaseEvent
	ClientID        int64         `json:"clientId"`
	ClientCode      string        `json:"clientCode"`
	ClientName      string        `json:"clientName"`
	ClientPhone     string        `json:"clientPhone"`
	OperatorID      int64         `json:"operatorId"`
	OperatorEmail   string        `json:"operatorEmail"`
	Lines           []orders.Line `json:"lines"`
	DocumentPath    string        `json:"documentPath"`
	SpreadsheetPath string        `json:"spreadsheetPath,omitempty"`
	TriggerMessage  int64         `json:"triggerMessageId"`
}

func (e OrderConfirmed) EventName() string { return "orders.order.confirmed" }

// =============================================================================
// Conversation Domain Events
// =============================================================================

// MessageIngested is published when the webhook stored an inbound or
// operator-written message.
type MessageIngested struct {
	BaseEvent
	MessageID   int64  `json:"messageId"`
	ClientID    int64  `json:"clientId"`
	ClientPhone string `json:"clientPhone"`
	Direction   string `json:"direction"`
}

func (e MessageIngested) EventName() string { return "conversation.message.ingested" }
