package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderbot_backend/internal/pipeline"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type stubTurns struct {
	err  error
	got  pipeline.Turn
	runs int
}

func (s *stubTurns) HandleTurn(_ context.Context, turn pipeline.Turn) (pipeline.Outcome, error) {
	s.runs++
	s.got = turn
	if s.err != nil {
		return pipeline.Outcome{State: pipeline.StateAbandoned}, s.err
	}
	return pipeline.Outcome{State: pipeline.StateSilent}, nil
}

func processTurnTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewProcessTurnTask(ProcessTurnPayload{
		ClientPhone: "34600111222",
		MessageID:   42,
		ClientID:    7,
		Content:     "pasame 2 del A1",
		SentAt:      time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("NewProcessTurnTask returned error: %v", err)
	}
	return task
}

func TestHandleProcessTurnRebuildsTurn(t *testing.T) {
	turns := &stubTurns{}
	w := &Worker{turns: turns, log: logger.Discard()}

	if err := w.handleProcessTurn(context.Background(), processTurnTask(t)); err != nil {
		t.Fatalf("handleProcessTurn returned error: %v", err)
	}
	if turns.got.Message.ID != 42 || turns.got.Message.ClientID != 7 {
		t.Fatalf("unexpected turn %+v", turns.got)
	}
	if turns.got.Source != pipeline.SourceLive {
		t.Fatalf("expected live source by default, got %s", turns.got.Source)
	}
}

func TestHandleProcessTurnRetriesOnlyOutages(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"unavailable", apperr.Unavailable("classifier failed", errors.New("503")), false},
		{"timeout", apperr.Timeout("classifier timed out", context.DeadlineExceeded), false},
		{"not found", apperr.NotFound("client not found"), true},
		{"plain", errors.New("disk full"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := &Worker{turns: &stubTurns{err: tc.err}, log: logger.Discard()}

			err := w.handleProcessTurn(context.Background(), processTurnTask(t))
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errors.Is(err, asynq.SkipRetry); got != tc.skipRetry {
				t.Fatalf("SkipRetry = %v, want %v (err %v)", got, tc.skipRetry, err)
			}
		})
	}
}

func TestHandleProcessTurnRejectsBadPayload(t *testing.T) {
	turns := &stubTurns{}
	w := &Worker{turns: turns, log: logger.Discard()}

	err := w.handleProcessTurn(context.Background(), asynq.NewTask(TaskProcessTurn, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for malformed payload, got %v", err)
	}
	if turns.runs != 0 {
		t.Fatalf("pipeline must not run for malformed payloads")
	}
}
