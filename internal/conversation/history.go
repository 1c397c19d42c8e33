package conversation

import (
	"strings"
)

// DefaultHistoryWindow is the number of recent messages shown to the model.
const DefaultHistoryWindow = 6

// History is the bounded, oldest-first view of a client's recent messages.
// It is rebuilt on every turn and never stored.
type History struct {
	Messages []Message
}

// BuildHistory takes messages newest first (as RecentMessages returns them),
// keeps the newest k and returns them oldest first. Messages without content
// are dropped after windowing.
func BuildHistory(newestFirst []Message, k int) History {
	if k <= 0 {
		k = DefaultHistoryWindow
	}
	if len(newestFirst) > k {
		newestFirst = newestFirst[:k]
	}
	out := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if strings.TrimSpace(newestFirst[i].Content) == "" {
			continue
		}
		out = append(out, newestFirst[i])
	}
	return History{Messages: out}
}

// String renders the history as "Client: ..." / "Operator: ..." lines.
func (h History) String() string {
	var b strings.Builder
	for i, m := range h.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if m.Direction == DirectionReceived {
			b.WriteString("Client: ")
		} else {
			b.WriteString("Operator: ")
		}
		b.WriteString(strings.TrimSpace(m.Content))
	}
	return b.String()
}

// SentNewestFirst returns the contents of operator and bot messages, newest first.
func (h History) SentNewestFirst() []string {
	var out []string
	for i := len(h.Messages) - 1; i >= 0; i-- {
		if h.Messages[i].Direction == DirectionSent {
			out = append(out, h.Messages[i].Content)
		}
	}
	return out
}

func (h History) Len() int { return len(h.Messages) }
