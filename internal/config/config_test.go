package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address)
	require.Equal(t, StorePostgres, cfg.Store)
	require.EqualValues(t, 10<<20, cfg.MaxFileSize)
	require.Equal(t, 8*time.Hour, cfg.SessionTTL)
	require.Equal(t, time.Minute, cfg.KPICacheTTL)
	require.Equal(t, "Asia/Dubai", cfg.Location.String())
	require.EqualValues(t, 5, cfg.SuspiciousThreshold)
	require.Len(t, cfg.SessionSecret, 32)
	require.Len(t, cfg.SigningSecret, 32)
	require.False(t, cfg.UseQueue())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("QMSVAULT_STORE", "memory")
	t.Setenv("QMSVAULT_BLOBS", "memory")
	t.Setenv("QMSVAULT_MAX_FILE_BYTES", "1024")
	t.Setenv("QMSVAULT_KPI_CACHE_TTL", "30s")
	t.Setenv("QMSVAULT_SIGNING_SECRET", "shh")
	t.Setenv("QMSVAULT_TIME_ZONE", "UTC")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, StoreMemory, cfg.Store)
	require.Equal(t, BlobsMemory, cfg.Blobs)
	require.EqualValues(t, 1024, cfg.MaxFileSize)
	require.Equal(t, 30*time.Second, cfg.KPICacheTTL)
	require.Equal(t, []byte("shh"), cfg.SigningSecret)
	require.Equal(t, time.UTC, cfg.Location)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("QMSVAULT_STORE", "sqlite")
	_, err := load(viper.New())
	require.ErrorContains(t, err, "unknown store")
}

func TestRedisCacheNeedsAddress(t *testing.T) {
	t.Setenv("QMSVAULT_KPI_CACHE", "redis")
	_, err := load(viper.New())
	require.Error(t, err)
}
