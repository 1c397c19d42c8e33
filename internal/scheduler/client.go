package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"

	"orderbot_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const processTurnMaxRetry = 2

type Client struct {
	client *asynq.Client
	queue  string
}

// TurnEnqueuer hands a live turn to the background worker.
type TurnEnqueuer interface {
	EnqueueTurn(ctx context.Context, payload ProcessTurnPayload) error
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
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

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueTurn schedules a live turn. The message id doubles as task id so a
// webhook redelivery cannot queue the same message twice.
func (c *Client) EnqueueTurn(ctx context.Context, payload ProcessTurnPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewProcessTurnTask(payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue), asynq.MaxRetry(processTurnMaxRetry)}
	if payload.MessageID != 0 {
		opts = append(opts, asynq.TaskID("turn:"+strconv.FormatInt(payload.MessageID, 10)))
	}

	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
