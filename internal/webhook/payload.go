package webhook

import "time"

// MessagePayload is the message event posted by the gowa gateway.
type MessagePayload struct {
	// SenderID is the author of the message, a number or JID.
	SenderID string `json:"sender_id" validate:"required,phone"`
	// ChatID is the conversation partner, a number or JID.
	ChatID    string         `json:"chat_id" validate:"required,phone"`
	FromMe    bool           `json:"is_from_me"`
	PushName  string         `json:"pushname"`
	Timestamp time.Time      `json:"timestamp"`
	Message   MessageContent `json:"message" validate:"required"`
}

type MessageContent struct {
	ID   string `json:"id" validate:"required,max=128"`
	Text string `json:"text" validate:"max=8192"`
}

// IngestResponse is returned to the gateway.
type IngestResponse struct {
	Status    string `json:"status"`
	MessageID int64  `json:"messageId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Enqueued  bool   `json:"enqueued,omitempty"`
}
