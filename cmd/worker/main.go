// Command worker consumes the notify and inspect tasks from Redis.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/app"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/logging"
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
		logger.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.UseQueue() {
		return errors.New("worker needs QMSVAULT_REDIS_ADDR")
	}
	if cfg.Store == config.StoreMemory || cfg.Blobs == config.BlobsMemory {
		return errors.New("worker needs the shared postgres store and s3 blobs")
	}
	backend, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	server := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.Workers,
		Logger:      logger.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	processor := worker.NewProcessor(backend.Store, backend.Blobs, logger)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()
	logger.Info("worker started", zap.Int("concurrency", cfg.Workers))
	return server.Run(processor.Handler())
}
