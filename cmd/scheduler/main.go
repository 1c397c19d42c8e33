package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"orderbot_backend/internal/bootstrap"
	"orderbot_backend/internal/scheduler"
	"orderbot_backend/platform/config"
	"orderbot_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env,
		"minAge", cfg.GetUnattendedMinAge(), "maxAge", cfg.GetUnattendedMaxAge())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, cfg, log, bootstrap.Options{})
	if err != nil {
		log.Error("failed to initialize runtime", "error", err)
		panic("failed to initialize runtime: " + err.Error())
	}
	defer rt.Close()

	unattended := scheduler.NewUnattended(rt.Repo, rt.Pipeline, scheduler.UnattendedOptions{
		MinAge:        cfg.GetUnattendedMinAge(),
		MaxAge:        cfg.GetUnattendedMaxAge(),
		Interval:      cfg.GetUnattendedTick(),
		Concurrency:   cfg.GetUnattendedConcurrency(),
		ClientTimeout: cfg.GetUnattendedClientTimeout(),
	}, log)

	sweepInterval := getDurationEnv("EXPORT_SWEEP_INTERVAL", time.Hour)
	retention := time.Duration(getPositiveIntEnv("EXPORT_RETENTION_DAYS", 7)) * 24 * time.Hour
	sweeper := scheduler.NewExportSweeper(cfg.GetExportDir(), log, sweepInterval, retention)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		unattended.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	// Live turns queued by the webhook are processed here when Redis is set up.
	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, rt.Pipeline, log)
		if err != nil {
			log.Error("failed to initialize scheduler worker", "error", err)
			panic("failed to initialize scheduler worker: " + err.Error())
		}
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	} else {
		log.Warn("REDIS_URL not configured; live turn worker disabled")
	}

	_ = g.Wait()
	log.Info("scheduler stopped")
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
