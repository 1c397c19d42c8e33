package pipeline

import (
	"context"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/orders"
)

// Store is the persistence the pipeline reads and appends through.
type Store interface {
	GetClientByPhone(ctx context.Context, phone string) (conversation.Client, error)
	GetOperatorForClient(ctx context.Context, c conversation.Client) (conversation.Operator, error)
	RecentMessages(ctx context.Context, clientID int64, limit int) ([]conversation.Message, error)
	HasAnswerAfter(ctx context.Context, clientID int64, at time.Time) (bool, error)
	AppendMessage(ctx context.Context, m conversation.Message) (conversation.Message, error)
	MarkAutomatedReply(ctx context.Context, providerID string, replyTo *int64) (conversation.Message, error)
}

// Classifier decides whether a message is order-related.
type Classifier interface {
	IsOrder(ctx context.Context, history, message string) (bool, error)
}

// Extractor returns raw, untrusted item proposals for a turn.
type Extractor interface {
	Extract(ctx context.Context, history, message string) (string, error)
}

// Assistant returns the raw, untrusted free-form reply for a turn.
type Assistant interface {
	Reply(ctx context.Context, operatorName, history, message string) (string, error)
}

// Dispatcher delivers messages and files to the client. The returned id is the
// transport's message id and may be empty.
type Dispatcher interface {
	SendMessage(ctx context.Context, to, text, from string) (string, error)
	SendFile(ctx context.Context, to, path, caption, from string) (string, error)
}

// SpreadsheetRenderer exports a confirmed order. An empty path means absent.
type SpreadsheetRenderer interface {
	RenderSpreadsheet(ctx context.Context, order orders.Order) (string, error)
}

// DocumentRenderer renders printable documents for orders and drafts.
type DocumentRenderer interface {
	RenderOrder(ctx context.Context, order orders.Order) (string, error)
	RenderDraft(ctx context.Context, client conversation.Client, draft orders.Draft) (string, error)
}

// Notifier tells the operator about a confirmed order.
type Notifier interface {
	NotifyOrder(ctx context.Context, operator conversation.Operator, client conversation.Client, order orders.Order, attachmentPath string) error
}

// ClientGuard serialises turns per client.
type ClientGuard interface {
	WithClient(ctx context.Context, clientID int64, fn func(ctx context.Context) error) error
}

// Publisher receives domain events.
type Publisher interface {
	Publish(ctx context.Context, event events.Event)
}
