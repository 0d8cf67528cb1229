// Kestrel - Real-time fraud detection and decisioning.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/logger"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
	"go.uber.org/zap"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// snapshotBreakerOpen is how long snapshot lookups fail fast once the
// breaker trips.
const snapshotBreakerOpen = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("KESTREL_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("kestrel stopped", zap.Error(err))
		log.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(cfg *domain.Config, log *zap.Logger) error {
	log.Info("starting kestrel",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
		zap.String("profile", string(cfg.Profile)),
		zap.String("repository", cfg.Repository.Driver),
		zap.String("cache", cfg.Cache.Type),
		zap.String("eventbus", cfg.EventBus.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()
	log.Info("repository initialized", zap.String("driver", cfg.Repository.Driver))

	checks := map[string]api.Pinger{"repository": repo}

	var snapshots domain.SnapshotReader = repo
	c, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if c != nil {
		defer c.Close()
		snapshots = cache.NewSnapshotCache(repo, c, cfg.Cache.SnapshotTTL, log)
		checks["cache"] = c
		log.Info("cache initialized", zap.String("type", cfg.Cache.Type))
	}
	snapshots = scoring.GuardSnapshots(snapshots, snapshotBreakerOpen, log)

	eventBus, err := bus.New(cfg.EventBus, log)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer eventBus.Close()
	checks["eventbus"] = eventBus
	log.Info("event bus initialized", zap.String("type", cfg.EventBus.Type))

	m := metrics.New()

	engine, err := buildEngine(cfg.Detection, repo, log)
	if err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}
	engine.SetRecorder(m)
	log.Info("rule engine initialized", zap.Int("rules_count", engine.RulesCount()))

	svc := fraud.NewService(
		repo,
		engine,
		scoring.NewService(cfg.Detection.Scoring, snapshots, log),
		decision.NewEngine(cfg.Detection.Decision, log),
		log,
		fraud.WithBus(eventBus),
		fraud.WithMetrics(m),
	)

	resolver := worker.NewWorker(eventBus, svc, log)
	if err := resolver.Start(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}

	handler := api.NewHandler(svc, engine, checks, Version, log)
	srv := api.NewServer(cfg.Server, handler, m.Handler(), log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("kestrel is ready",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case serveErr = <-errCh:
		log.Error("server failed", zap.Error(serveErr))
	}

	if err := resolver.Stop(); err != nil {
		log.Error("failed to stop worker", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("kestrel shutdown complete")
	return serveErr
}

// buildEngine registers the velocity and geo rules followed by every
// configured expression rule.
func buildEngine(cfg domain.DetectionConfig, repo domain.Repository, log *zap.Logger) (*rules.Engine, error) {
	engine := rules.NewEngine(cfg.Engine, log)

	expr, err := rules.NewExpressionRules(cfg.ExpressionRules)
	if err != nil {
		return nil, err
	}

	all := []rules.Rule{
		rules.NewVelocityRule(cfg.Velocity, velocity.NewService(repo)),
		rules.NewGeoAnomalyRule(cfg.Geo, repo),
	}
	if err := engine.Register(append(all, expr...)...); err != nil {
		return nil, err
	}
	return engine, nil
}
