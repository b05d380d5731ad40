package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type kpi struct {
	Documents int64   `json:"documents"`
	Change    float64 `json:"change"`
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "kpi_30", kpi{Documents: 4, Change: 33.3}, time.Minute))

	var got kpi
	ok, err := m.Get(ctx, "kpi_30", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, kpi{Documents: 4, Change: 33.3}, got)

	now = now.Add(time.Minute)
	ok, err = m.Get(ctx, "kpi_30", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryDeleteAndZeroTTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "a", 1, 0))
	var n int
	ok, _ := m.Get(ctx, "a", &n)
	require.False(t, ok)

	require.NoError(t, m.Set(ctx, "a", 1, time.Hour))
	require.NoError(t, m.Delete(ctx, "a"))
	ok, _ = m.Get(ctx, "a", &n)
	require.False(t, ok)
}

func TestMemoryConcurrentPopulate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var v int
			if ok, _ := m.Get(ctx, "k", &v); !ok {
				_ = m.Set(ctx, "k", i, time.Minute)
			}
		}(i)
	}
	wg.Wait()
	var v int
	ok, err := m.Get(ctx, "k", &v)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	require.NoError(t, c.Set(context.Background(), "k", 1, time.Minute))
	var v int
	ok, err := c.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	require.False(t, ok)
}
