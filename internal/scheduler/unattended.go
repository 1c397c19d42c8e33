package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/pipeline"
	"orderbot_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

const (
	defaultMinAge        = 15 * time.Minute
	defaultMaxAge        = 30 * time.Minute
	defaultTickInterval  = time.Minute
	defaultConcurrency   = 4
	defaultClientTimeout = 2 * time.Minute
)

// MessageSource lists the candidates of an unattended pass.
type MessageSource interface {
	LatestReceivedPerClient(ctx context.Context) ([]conversation.LatestReceived, error)
	HasAnswerAfter(ctx context.Context, clientID int64, at time.Time) (bool, error)
}

type UnattendedOptions struct {
	MinAge        time.Duration
	MaxAge        time.Duration
	Interval      time.Duration
	Concurrency   int
	ClientTimeout time.Duration
}

// TickReport summarises one pass.
type TickReport struct {
	Candidates int
	Handled    int
	Skipped    int
	Failed     int
}

// Unattended answers clients whose last message has been waiting for a reply
// between MinAge and MaxAge.
type Unattended struct {
	source MessageSource
	turns  TurnHandler
	opts   UnattendedOptions
	log    *logger.Logger
	now    func() time.Time
}

func NewUnattended(source MessageSource, turns TurnHandler, opts UnattendedOptions, log *logger.Logger) *Unattended {
	if opts.MinAge <= 0 {
		opts.MinAge = defaultMinAge
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultTickInterval
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = defaultClientTimeout
	}

	return &Unattended{
		source: source,
		turns:  turns,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// Run ticks until ctx is cancelled. A failed pass is logged and the next one
// runs on schedule.
func (u *Unattended) Run(ctx context.Context) {
	if u == nil || u.source == nil {
		return
	}

	ticker := time.NewTicker(u.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		report, err := u.Tick(ctx)
		if err != nil {
			u.log.Warn("unattended pass failed", "error", err)
			continue
		}
		if report.Handled > 0 || report.Failed > 0 {
			u.log.Info("unattended pass finished",
				"candidates", report.Candidates,
				"handled", report.Handled,
				"skipped", report.Skipped,
				"failed", report.Failed,
			)
		}
	}
}

// Tick runs one pass over every client's latest inbound message. Per-client
// failures are counted, never returned.
func (u *Unattended) Tick(ctx context.Context) (TickReport, error) {
	latest, err := u.source.LatestReceivedPerClient(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("list latest received: %w", err)
	}

	now := u.now()
	var handled, skipped, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(u.opts.Concurrency)

	for _, lr := range latest {
		if reason := u.skipReason(now, lr); reason != "" {
			skipped.Add(1)
			u.log.Debug("unattended skip", "clientId", lr.Client.ID, "reason", reason)
			continue
		}

		g.Go(func() error {
			switch u.runClient(ctx, lr) {
			case resultHandled:
				handled.Add(1)
			case resultSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return TickReport{
		Candidates: len(latest),
		Handled:    int(handled.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}, nil
}

func (u *Unattended) skipReason(now time.Time, lr conversation.LatestReceived) string {
	if strings.TrimSpace(lr.Message.Content) == "" {
		return "empty"
	}
	age := now.Sub(lr.Message.SentAt)
	if age < u.opts.MinAge || age > u.opts.MaxAge {
		return "outside window"
	}
	if lr.Client.OperatorID == nil {
		return "no operator"
	}
	return ""
}

type clientResult int

const (
	resultFailed clientResult = iota
	resultHandled
	resultSkipped
)

func (u *Unattended) runClient(ctx context.Context, lr conversation.LatestReceived) (result clientResult) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.ClientTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			u.log.Error("unattended client panicked", "clientId", lr.Client.ID, "panic", r)
			result = resultFailed
		}
	}()

	answered, err := u.source.HasAnswerAfter(ctx, lr.Client.ID, lr.Message.SentAt)
	if err != nil {
		u.log.DatabaseError("has_answer_after", err)
		return resultFailed
	}
	if answered {
		return resultSkipped
	}

	out, err := u.turns.HandleTurn(ctx, pipeline.Turn{
		ClientPhone: lr.Client.Phone,
		Message:     lr.Message,
		Source:      pipeline.SourceUnattended,
	})
	if err != nil {
		u.log.Warn("unattended turn failed", "clientId", lr.Client.ID, "state", out.State, "error", err)
		return resultFailed
	}
	if out.State == pipeline.StateAnswered {
		return resultSkipped
	}
	return resultHandled
}
