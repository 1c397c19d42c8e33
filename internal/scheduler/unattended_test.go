package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/pipeline"
	"orderbot_backend/platform/logger"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu       sync.Mutex
	latest   []conversation.LatestReceived
	answered map[int64]bool
	listErr  error
}

func (s *fakeSource) LatestReceivedPerClient(context.Context) ([]conversation.LatestReceived, error) {
	return s.latest, s.listErr
}

func (s *fakeSource) HasAnswerAfter(_ context.Context, clientID int64, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answered[clientID], nil
}

func (s *fakeSource) markAnswered(clientID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answered[clientID] = true
}

type fakeTurns struct {
	mu      sync.Mutex
	handled []pipeline.Turn
	fail    map[string]error
	panics  map[string]bool
	onTurn  func(pipeline.Turn)
}

func (f *fakeTurns) HandleTurn(_ context.Context, turn pipeline.Turn) (pipeline.Outcome, error) {
	if f.panics[turn.ClientPhone] {
		panic("renderer exploded")
	}
	if err := f.fail[turn.ClientPhone]; err != nil {
		return pipeline.Outcome{State: pipeline.StateAbandoned}, err
	}
	f.mu.Lock()
	f.handled = append(f.handled, turn)
	f.mu.Unlock()
	if f.onTurn != nil {
		f.onTurn(turn)
	}
	return pipeline.Outcome{State: pipeline.StateFreeformReplied}, nil
}

func (f *fakeTurns) phones() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, t := range f.handled {
		out[t.ClientPhone] = true
	}
	return out
}

func candidate(id int64, phone, content string, age time.Duration) conversation.LatestReceived {
	op := int64(99)
	return conversation.LatestReceived{
		Client: conversation.Client{ID: id, Phone: phone, OperatorID: &op},
		Message: conversation.Message{
			ID:        id * 100,
			ClientID:  id,
			Direction: conversation.DirectionReceived,
			Content:   content,
			SentAt:    fixedNow.Add(-age),
		},
	}
}

func newTestUnattended(source *fakeSource, turns *fakeTurns) *Unattended {
	u := NewUnattended(source, turns, UnattendedOptions{Concurrency: 2, ClientTimeout: time.Second}, logger.Discard())
	u.now = func() time.Time { return fixedNow }
	return u
}

func TestTickRespectsStalenessWindow(t *testing.T) {
	source := &fakeSource{
		latest: []conversation.LatestReceived{
			candidate(1, "10min", "hola", 10*time.Minute),
			candidate(2, "20min", "hola", 20*time.Minute),
			candidate(3, "45min", "hola", 45*time.Minute),
			candidate(4, "15min", "hola", 15*time.Minute),
			candidate(5, "30min", "hola", 30*time.Minute),
		},
		answered: map[int64]bool{},
	}
	turns := &fakeTurns{}

	report, err := newTestUnattended(source, turns).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}

	got := turns.phones()
	for phone, want := range map[string]bool{"10min": false, "20min": true, "45min": false, "15min": true, "30min": true} {
		if got[phone] != want {
			t.Fatalf("client %s: expected handled=%v", phone, want)
		}
	}
	if report.Handled != 3 || report.Skipped != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestTickSkipsAnsweredEmptyAndUnassigned(t *testing.T) {
	unassigned := candidate(3, "unassigned", "hola", 20*time.Minute)
	unassigned.Client.OperatorID = nil
	source := &fakeSource{
		latest: []conversation.LatestReceived{
			candidate(1, "answered", "hola", 20*time.Minute),
			candidate(2, "empty", "   ", 20*time.Minute),
			unassigned,
		},
		answered: map[int64]bool{1: true},
	}
	turns := &fakeTurns{}

	report, err := newTestUnattended(source, turns).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if len(turns.phones()) != 0 {
		t.Fatalf("expected no turns, got %v", turns.phones())
	}
	if report.Skipped != 3 {
		t.Fatalf("expected three skips, got %+v", report)
	}
}

func TestTickToleratesFailingClients(t *testing.T) {
	source := &fakeSource{
		latest: []conversation.LatestReceived{
			candidate(1, "boom", "hola", 20*time.Minute),
			candidate(2, "panic", "hola", 20*time.Minute),
			candidate(3, "ok", "hola", 20*time.Minute),
		},
		answered: map[int64]bool{},
	}
	turns := &fakeTurns{
		fail:   map[string]error{"boom": errors.New("model unavailable")},
		panics: map[string]bool{"panic": true},
	}

	report, err := newTestUnattended(source, turns).Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick returned error: %v", err)
	}
	if !turns.phones()["ok"] {
		t.Fatalf("healthy client must still be handled")
	}
	if report.Failed != 2 || report.Handled != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestTickReturnsListError(t *testing.T) {
	source := &fakeSource{listErr: errors.New("connection refused")}

	if _, err := newTestUnattended(source, &fakeTurns{}).Tick(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestAnsweredStateIsReadEveryTick(t *testing.T) {
	source := &fakeSource{
		latest:   []conversation.LatestReceived{candidate(1, "c1", "pasame 2 del A1", 20*time.Minute)},
		answered: map[int64]bool{},
	}
	turns := &fakeTurns{}
	turns.onTurn = func(turn pipeline.Turn) { source.markAnswered(turn.Message.ClientID) }
	u := newTestUnattended(source, turns)

	for i := 0; i < 3; i++ {
		if _, err := u.Tick(context.Background()); err != nil {
			t.Fatalf("Tick returned error: %v", err)
		}
	}

	turns.mu.Lock()
	defer turns.mu.Unlock()
	if len(turns.handled) != 1 {
		t.Fatalf("expected a single reply across ticks, got %d", len(turns.handled))
	}
	if turns.handled[0].Source != pipeline.SourceUnattended {
		t.Fatalf("expected unattended source, got %s", turns.handled[0].Source)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	source := &fakeSource{answered: map[int64]bool{}}
	u := NewUnattended(source, &fakeTurns{}, UnattendedOptions{Interval: 5 * time.Millisecond}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
