package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbot_backend/internal/bootstrap"
	apphttp "orderbot_backend/internal/http"
	"orderbot_backend/internal/http/router"
	"orderbot_backend/internal/scheduler"
	"orderbot_backend/internal/webhook"
	"orderbot_backend/platform/config"
	"orderbot_backend/platform/logger"
	"orderbot_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Error("failed to initialize runtime", "error", err)
		panic("failed to initialize runtime: " + err.Error())
	}
	defer rt.Close()

	enqueuer, closeEnqueuer := initTurnEnqueuer(cfg, log)
	if closeEnqueuer != nil {
		defer closeEnqueuer()
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	webhookService := webhook.NewService(rt.Repo, enqueuer, rt.Bus, webhook.ServiceOptions{
		LiveReplies: cfg.GetLiveAutoReplyEnabled(),
		Region:      cfg.GetPhoneDefaultRegion(),
	}, log)
	webhookModule := webhook.NewModule(webhookService, validator.New(), cfg.GetWhatsAppWebhookSecret())
	if cfg.GetWhatsAppWebhookSecret() == "" {
		log.Warn("WHATSAPP_WEBHOOK_SECRET not configured; webhook signatures are not checked")
	}

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   rt,
		EventBus: rt.Bus,
		Modules:  []apphttp.Module{webhookModule},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

// initTurnEnqueuer returns nil when live replies are off or Redis is missing;
// inbound messages are then left to the unattended pass.
func initTurnEnqueuer(cfg *config.Config, log *logger.Logger) (scheduler.TurnEnqueuer, func()) {
	if !cfg.GetLiveAutoReplyEnabled() {
		log.Info("live auto-reply disabled; inbound messages are answered by the unattended pass")
		return nil, nil
	}
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; live auto-reply disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize turn queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}
