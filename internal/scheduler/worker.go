package scheduler

import (
	"context"
	"fmt"

	"orderbot_backend/internal/pipeline"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/config"
	"orderbot_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// TurnHandler runs one conversation turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn pipeline.Turn) (pipeline.Outcome, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	turns  TurnHandler
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, turns TurnHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		turns:  turns,
		log:    log,
	}

	mux.HandleFunc(TaskProcessTurn, w.handleProcessTurn)

	return w, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}

// handleProcessTurn retries only collaborator outages; a retried turn is
// still guarded by the answered check, so it cannot reply twice.
func (w *Worker) handleProcessTurn(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProcessTurnPayload(task)
	if err != nil {
		return fmt.Errorf("invalid turn payload: %v: %w", err, asynq.SkipRetry)
	}

	out, err := w.turns.HandleTurn(ctx, payload.Turn())
	if err != nil {
		switch apperr.GetKind(err) {
		case apperr.KindUnavailable, apperr.KindTimeout:
			return err
		default:
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
	}

	w.log.Debug("live turn processed", "messageId", payload.MessageID, "state", out.State)
	return nil
}
