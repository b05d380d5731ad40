package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/cache"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/storage"
)

func TestOpenMemoryBackend(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{Store: config.StoreMemory, Blobs: config.BlobsMemory}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	require.IsType(t, &storage.MemoryStore{}, b.Store)
	require.IsType(t, &storage.MemoryBlobs{}, b.Blobs)
}

func TestOpenRejectsUnknownBackends(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: "sqlite", Blobs: config.BlobsMemory}, zap.NewNop())
	require.ErrorContains(t, err, "unknown store")
	_, err = Open(context.Background(), &config.Config{Store: config.StoreMemory, Blobs: "ftp"}, zap.NewNop())
	require.ErrorContains(t, err, "unknown blob storage")
}

func TestNewCache(t *testing.T) {
	c, closeFn, err := NewCache(context.Background(), &config.Config{KPICache: config.CacheMemory})
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &cache.Memory{}, c)

	c, _, err = NewCache(context.Background(), &config.Config{KPICache: config.CacheNone})
	require.NoError(t, err)
	require.IsType(t, cache.Nop{}, c)

	_, _, err = NewCache(context.Background(), &config.Config{KPICache: "memcached"})
	require.Error(t, err)
}
