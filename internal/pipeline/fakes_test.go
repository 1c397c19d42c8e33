package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/orders"
)

type fakeStore struct {
	mu        sync.Mutex
	clients   map[string]conversation.Client
	operators map[int64]conversation.Operator
	messages  []conversation.Message
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients:   map[string]conversation.Client{},
		operators: map[int64]conversation.Operator{},
		nextID:    1,
	}
}

func (s *fakeStore) addClient(c conversation.Client) { s.clients[c.Phone] = c }

func (s *fakeStore) addOperator(o conversation.Operator) { s.operators[o.ID] = o }

func (s *fakeStore) seed(clientID int64, dir conversation.Direction, content string, at time.Time) conversation.Message {
	m, err := s.AppendMessage(context.Background(), conversation.Message{
		ClientID: clientID, Direction: dir, Content: content, SentAt: at,
	})
	if err != nil {
		panic(err)
	}
	return m
}

func (s *fakeStore) GetClientByPhone(_ context.Context, phone string) (conversation.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[phone]
	if !ok {
		return conversation.Client{}, conversation.ErrClientNotFound
	}
	return c, nil
}

func (s *fakeStore) GetOperatorForClient(_ context.Context, c conversation.Client) (conversation.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.OperatorID == nil {
		return conversation.Operator{}, conversation.ErrOperatorNotFound
	}
	o, ok := s.operators[*c.OperatorID]
	if !ok {
		return conversation.Operator{}, conversation.ErrOperatorNotFound
	}
	return o, nil
}

func (s *fakeStore) RecentMessages(_ context.Context, clientID int64, limit int) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []conversation.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].ClientID == clientID {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

func (s *fakeStore) HasAnswerAfter(_ context.Context, clientID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ClientID == clientID && m.Direction == conversation.DirectionSent && m.SentAt.After(at) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) AppendMessage(_ context.Context, m conversation.Message) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Automated && m.ReplyTo != nil {
		for _, existing := range s.messages {
			if existing.Automated && existing.ReplyTo != nil && *existing.ReplyTo == *m.ReplyTo {
				return conversation.Message{}, conversation.ErrDuplicateReply
			}
		}
	}
	if m.ProviderID != nil {
		for _, existing := range s.messages {
			if existing.ProviderID != nil && *existing.ProviderID == *m.ProviderID {
				return conversation.Message{}, conversation.ErrDuplicateMessage
			}
		}
	}
	m.ID = s.nextID
	s.nextID++
	s.messages = append(s.messages, m)
	return m, nil
}

func (s *fakeStore) MarkAutomatedReply(_ context.Context, providerID string, replyTo *int64) (conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, m := range s.messages {
		if m.ProviderID != nil && *m.ProviderID == providerID {
			idx = i
			continue
		}
		if replyTo != nil && m.Automated && m.ReplyTo != nil && *m.ReplyTo == *replyTo {
			return conversation.Message{}, conversation.ErrDuplicateReply
		}
	}
	if idx < 0 {
		return conversation.Message{}, conversation.ErrMessageNotFound
	}
	s.messages[idx].Automated = true
	if replyTo != nil {
		s.messages[idx].ReplyTo = replyTo
	}
	return s.messages[idx], nil
}

func (s *fakeStore) automatedReplies(replyTo int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.Automated && m.ReplyTo != nil && *m.ReplyTo == replyTo {
			n++
		}
	}
	return n
}

type fakeClassifier struct {
	verdict bool
	err     error
	calls   int
}

func (f *fakeClassifier) IsOrder(context.Context, string, string) (bool, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeExtractor struct {
	raw   string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string, string) (string, error) {
	f.calls++
	return f.raw, f.err
}

type fakeAssistant struct {
	raw          string
	err          error
	calls        int
	operatorName string
	delay        time.Duration
}

func (f *fakeAssistant) Reply(_ context.Context, operatorName, _, _ string) (string, error) {
	f.calls++
	f.operatorName = operatorName
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.raw, f.err
}

type sent struct {
	to, text, path, caption, from string
}

type fakeDispatcher struct {
	mu       sync.Mutex
	messages []sent
	files    []sent
	err      error
	// providerID is returned for every delivery; echo runs after a text
	// delivery the way the transport's webhook echo would.
	providerID string
	echo       func(providerID, text string)
}

func (f *fakeDispatcher) SendMessage(_ context.Context, to, text, from string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.messages = append(f.messages, sent{to: to, text: text, from: from})
	if f.echo != nil {
		f.echo(f.providerID, text)
	}
	return f.providerID, nil
}

func (f *fakeDispatcher) SendFile(_ context.Context, to, path, caption, from string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, sent{to: to, path: path, caption: caption, from: from})
	return f.providerID, nil
}

func (f *fakeDispatcher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages), len(f.files)
}

type fakeSpreadsheet struct {
	path string
	err  error
	got  orders.Order
}

func (f *fakeSpreadsheet) RenderSpreadsheet(_ context.Context, o orders.Order) (string, error) {
	f.got = o
	return f.path, f.err
}

type fakeDocuments struct {
	dir       string
	orderErr  error
	draftErr  error
	lastDraft string
}

func (f *fakeDocuments) RenderOrder(context.Context, orders.Order) (string, error) {
	if f.orderErr != nil {
		return "", f.orderErr
	}
	return filepath.Join(f.dir, "pedido.pdf"), nil
}

func (f *fakeDocuments) RenderDraft(context.Context, conversation.Client, orders.Draft) (string, error) {
	if f.draftErr != nil {
		return "", f.draftErr
	}
	path := filepath.Join(f.dir, "borrador.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o600); err != nil {
		return "", err
	}
	f.lastDraft = path
	return path, nil
}

type notified struct {
	operator   conversation.Operator
	client     conversation.Client
	lines      []orders.Line
	attachment string
}

type fakeNotifier struct {
	calls []notified
	err   error
}

func (f *fakeNotifier) NotifyOrder(_ context.Context, op conversation.Operator, c conversation.Client, order orders.Order, attachment string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, notified{operator: op, client: c, lines: order.Lines, attachment: attachment})
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fakePublisher) Publish(_ context.Context, e events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

type passGuard struct{}

func (passGuard) WithClient(ctx context.Context, _ int64, fn func(context.Context) error) error {
	return fn(ctx)
}

var errBoom = errors.New("boom")
