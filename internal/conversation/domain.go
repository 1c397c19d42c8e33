// Package conversation owns clients, operators and the message log that every
// pipeline turn is derived from. Postgres is the only source of truth.
package conversation

import (
	"errors"
	"strings"
	"time"
)

// Direction of a message relative to the client.
type Direction string

const (
	// DirectionReceived is a message written by the client.
	DirectionReceived Direction = "received"
	// DirectionSent is a message written by the operator or the bot.
	DirectionSent Direction = "sent"
)

// Valid reports whether d is one of the two canonical directions.
func (d Direction) Valid() bool {
	return d == DirectionReceived || d == DirectionSent
}

// Role of an operator account.
type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// DefaultOperatorName is used in prompts when the operator has no name.
const DefaultOperatorName = "el vendedor"

var (
	ErrClientNotFound   = errors.New("client not found")
	ErrOperatorNotFound = errors.New("operator not found")
	ErrMessageNotFound  = errors.New("message not found")
	// ErrDuplicateMessage means a message with the same provider id is already stored.
	ErrDuplicateMessage = errors.New("message already stored")
	// ErrDuplicateReply means an automated reply to the same inbound message already exists.
	ErrDuplicateReply = errors.New("automated reply already recorded")
)

type Client struct {
	ID         int64
	Code       string
	Name       string
	Phone      string
	OperatorID *int64
}

type Operator struct {
	ID    int64
	Phone string
	Email string
	Name  string
	Role  Role
}

// DisplayName returns the operator name, or a neutral fallback.
func (o Operator) DisplayName() string {
	if name := strings.TrimSpace(o.Name); name != "" {
		return name
	}
	return DefaultOperatorName
}

// Message is one stored conversation turn.
type Message struct {
	ID         int64
	ClientID   int64
	OperatorID *int64
	Direction  Direction
	Content    string
	SentAt     time.Time
	Automated  bool
	// ReplyTo is the inbound message an automated reply answers.
	ReplyTo    *int64
	ProviderID *string
}

// LatestReceived pairs a client with its newest inbound message.
type LatestReceived struct {
	Client  Client
	Message Message
}

// FlattenNewlines stores multi-line inbound text on a single line, the way
// operators see it in exports and history.
func FlattenNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(strings.TrimSpace(text), "\n", " \\")
}
