// Package bootstrap is the shared composition root of the api, scheduler and
// orderctl binaries. It opens infrastructure and assembles the turn pipeline.
package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"orderbot_backend/internal/agent"
	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/email"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/exports"
	"orderbot_backend/internal/notification"
	"orderbot_backend/internal/pdf"
	"orderbot_backend/internal/pipeline"
	"orderbot_backend/internal/replyguard"
	"orderbot_backend/internal/storage"
	"orderbot_backend/internal/whatsapp"
	"orderbot_backend/migrations"
	"orderbot_backend/platform/ai/ollama"
	"orderbot_backend/platform/broker"
	"orderbot_backend/platform/config"
	"orderbot_backend/platform/db"
	"orderbot_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	retryAttempts  = 5
	retryBaseDelay = 2 * time.Second
)

// Options selects what Open sets up.
type Options struct {
	// Migrate applies pending migrations before connecting.
	Migrate bool
}

// Runtime holds the opened infrastructure and the assembled pipeline.
type Runtime struct {
	Config   *config.Config
	Log      *logger.Logger
	Pool     *pgxpool.Pool
	Repo     *conversation.Repository
	Bus      *events.InMemoryBus
	WhatsApp *whatsapp.Client
	Pipeline *pipeline.Pipeline

	closers []func()
}

// Open connects to Postgres, Redis, MinIO and RabbitMQ as configured and
// builds the pipeline. Optional outputs that are not configured are skipped.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log}

	if opts.Migrate {
		if err := WithRetry(ctx, log, "database migrations", retryAttempts, retryBaseDelay, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		}); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations complete")
	}

	if err := WithRetry(ctx, log, "database connection", retryAttempts, retryBaseDelay, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		rt.Pool = p
		return nil
	}); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	rt.closers = append(rt.closers, rt.Pool.Close)
	log.Info("database connection established")

	rt.Repo = conversation.NewRepository(rt.Pool)
	rt.Bus = events.NewInMemoryBus(log)

	rt.WhatsApp = whatsapp.NewClient(cfg, cfg.GetPhoneDefaultRegion(), log)
	if rt.WhatsApp == nil {
		rt.Close()
		return nil, errors.New("WHATSAPP_URL is required")
	}

	locker, err := rt.newLocker()
	if err != nil {
		rt.Close()
		return nil, err
	}

	if err := rt.registerNotifications(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	llm := ollama.NewModel(ollama.Config{
		APIKey:  cfg.GetLLMAPIKey(),
		BaseURL: cfg.GetLLMBaseURL(),
		Model:   cfg.GetLLMModel(),
	})
	caps, err := agent.New(llm, agent.Options{
		Timeout:     cfg.GetLLMTimeout(),
		CompanyName: cfg.GetCompanyName(),
	}, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	log.Info("model capabilities initialized", "model", llm.Name(), "baseUrl", cfg.GetLLMBaseURL())

	rt.Pipeline = pipeline.New(pipeline.Deps{
		Store:       rt.Repo,
		Classifier:  caps.Classifier,
		Extractor:   caps.Extractor,
		Assistant:   caps.Assistant,
		Dispatcher:  rt.WhatsApp,
		Spreadsheet: exports.NewSpreadsheetRenderer(cfg.GetExportDir()),
		Documents:   pdf.NewRenderer(cfg.GetExportDir(), cfg.GetCompanyName()),
		Notifier:    email.NewOrderNotifier(email.NewSender(cfg), log),
		Guard:       replyguard.NewGuard(locker, replyguard.Options{TTL: cfg.GetClientLockTTL()}, log),
		Events:      rt.Bus,
	}, cfg.GetHistoryWindow(), log)

	return rt, nil
}

// Close releases everything Open acquired, newest first.
func (rt *Runtime) Close() {
	if rt.Bus != nil {
		rt.Bus.Wait()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// Ping reports database health.
func (rt *Runtime) Ping(ctx context.Context) error {
	return rt.Pool.Ping(ctx)
}

// newLocker returns a Redis-backed locker, or an in-process one when Redis is
// not configured. The in-process locker only protects a single process.
func (rt *Runtime) newLocker() (replyguard.Locker, error) {
	if rt.Config.GetRedisURL() == "" {
		rt.Log.Warn("REDIS_URL not configured; client locks are process-local")
		return replyguard.NewMemoryLocker(), nil
	}

	opt, err := redis.ParseURL(rt.Config.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if rt.Config.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	rdb := redis.NewClient(opt)
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	return replyguard.NewRedisLocker(rdb), nil
}

func (rt *Runtime) registerNotifications(ctx context.Context) error {
	cfg := rt.Config

	var archiver notification.OrderArchiver
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		a := storage.NewArchiver(svc, cfg.GetMinioBucketOrders(), rt.Log)
		if err := WithRetry(ctx, rt.Log, "ensure orders bucket", retryAttempts, retryBaseDelay, func() error {
			return a.Init(ctx)
		}); err != nil {
			return fmt.Errorf("ensure storage bucket: %w", err)
		}
		archiver = a
		rt.Log.Info("order archive initialized", "bucket", cfg.GetMinioBucketOrders())
	}

	var publisher broker.Publisher
	if cfg.IsBrokerEnabled() {
		p, err := broker.NewRabbitPublisher(ctx, broker.Options{
			URL:           cfg.GetAMQPURL(),
			Exchange:      cfg.GetAMQPExchange(),
			RetryAttempts: retryAttempts,
			Delay:         retryBaseDelay,
		}, rt.Log)
		if err != nil {
			return fmt.Errorf("init broker: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = p.Close() })
		publisher = p
		rt.Log.Info("order event publisher initialized", "exchange", cfg.GetAMQPExchange())
	}

	notification.New(archiver, publisher, cfg.GetAMQPRoutingKey(), rt.Log).RegisterHandlers(rt.Bus)
	return nil
}

// WithRetry runs fn up to attempts times with quadratic backoff.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
