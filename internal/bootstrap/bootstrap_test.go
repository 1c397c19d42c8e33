package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"orderbot_backend/platform/logger"
)

func TestWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), logger.Discard(), "op", 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestWithRetryReportsLastError(t *testing.T) {
	err := WithRetry(context.Background(), logger.Discard(), "connect", 2, time.Millisecond, func() error {
		return errors.New("refused")
	})
	if err == nil || err.Error() != "connect: refused" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWithRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, logger.Discard(), "op", 3, time.Second, func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
