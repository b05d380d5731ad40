// Package app assembles the storage, cache and queue backends selected by
// configuration. The binaries share it so they agree on what "store=postgres"
// or "kpi_cache=redis" means.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/cache"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/database"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/repository"
	"github.com/dharsanguruparan/QMSVault/internal/s3storage"
	"github.com/dharsanguruparan/QMSVault/internal/server"
	"github.com/dharsanguruparan/QMSVault/internal/storage"
	"github.com/dharsanguruparan/QMSVault/internal/worker"
)

// Store is the full persistence surface: web handlers, analytics, the
// background worker and the admin CLI.
type Store interface {
	server.Store
	analytics.Source
	worker.Store
	CreateDepartment(ctx context.Context, d *model.Department) error
	SetDepartmentActive(ctx context.Context, id int64, active bool) error
	CreateUser(ctx context.Context, u *model.User) error
	SetUserGroups(ctx context.Context, id int64, groups []string) error
	DeleteUser(ctx context.Context, id int64) error
}

var (
	_ Store = (*storage.MemoryStore)(nil)
	_ Store = (*repository.Repository)(nil)
)

// Backend holds the opened store and blob storage.
type Backend struct {
	Store  Store
	Blobs  server.Blobs
	closer []func()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closer) - 1; i >= 0; i-- {
		b.closer[i]()
	}
}

// Open connects the configured store and blob storage. Postgres gets its
// schema applied; the S3 bucket is created when missing.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	b := &Backend{}
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		b.closer = append(b.closer, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.Store = repository.New(pool)
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		b.Store = storage.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	switch cfg.Blobs {
	case config.BlobsS3:
		objects, err := s3storage.New(cfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		b.Blobs = objects
	case config.BlobsMemory:
		b.Blobs = storage.NewMemoryBlobs()
	default:
		b.Close()
		return nil, fmt.Errorf("unknown blob storage %q", cfg.Blobs)
	}
	return b, nil
}

// RedisOpt is the asynq connection for the configured Redis.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// NewCache builds the KPI cache. The returned func closes any connection.
func NewCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.KPICache {
	case config.CacheMemory:
		return cache.NewMemory(), func() {}, nil
	case config.CacheNone:
		return cache.Nop{}, func() {}, nil
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return cache.NewRedis(client, "qmsvault:kpi:"), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown kpi cache %q", cfg.KPICache)
}
