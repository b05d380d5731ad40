// Command server runs the QMSVault web application.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/app"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/logging"
	"github.com/dharsanguruparan/QMSVault/internal/processing"
	"github.com/dharsanguruparan/QMSVault/internal/queue"
	"github.com/dharsanguruparan/QMSVault/internal/server"
	"github.com/dharsanguruparan/QMSVault/internal/session"
	"github.com/dharsanguruparan/QMSVault/internal/signing"
	"github.com/dharsanguruparan/QMSVault/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	kpiCache, closeCache, err := app.NewCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	aggregator := analytics.New(backend.Store, kpiCache, logger, analytics.Options{
		CacheTTL:            cfg.KPICacheTTL,
		Location:            cfg.Location,
		SuspiciousThreshold: cfg.SuspiciousThreshold,
		SuspiciousWindow:    cfg.SuspiciousWindow,
	})

	// Without Redis the background jobs run in-process.
	var tasks queue.Enqueuer
	if cfg.UseQueue() {
		client := queue.NewClient(app.RedisOpt(cfg))
		defer client.Close()
		tasks = client
		logger.Info("background tasks go through redis", zap.String("redis_addr", cfg.RedisAddr))
	} else {
		pool := processing.New(worker.NewProcessor(backend.Store, backend.Blobs, logger), cfg.Workers, logger)
		pool.Start(ctx)
		tasks = pool
		logger.Info("background tasks run in-process", zap.Int("workers", cfg.Workers))
	}

	srv, err := server.New(cfg, server.Deps{
		Store:     backend.Store,
		Blobs:     backend.Blobs,
		Analytics: aggregator,
		Tasks:     tasks,
		Sessions:  session.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies),
		Signer:    signing.NewSigner(cfg.SigningSecret, cfg.SignedURLTTL),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}
