package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func unreachableRedis(t *testing.T) *Redis {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "qmsvault:test:")
}

func TestRedisPropagatesErrors(t *testing.T) {
	ctx := context.Background()
	var c Cache = unreachableRedis(t)

	var got kpi
	found, err := c.Get(ctx, "kpi:30", &got)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis get kpi:30")
	require.False(t, found)

	err = c.Set(ctx, "kpi:30", kpi{Documents: 3}, time.Minute)
	require.ErrorContains(t, err, "redis set kpi:30")

	require.ErrorContains(t, c.Delete(ctx, "kpi:30"), "redis del kpi:30")
}

func TestRedisSetSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	c := unreachableRedis(t)

	require.NoError(t, c.Set(ctx, "kpi:7", kpi{Documents: 1}, 0))
	err := c.Set(ctx, "kpi:7", make(chan int), time.Minute)
	require.ErrorContains(t, err, "encode cached kpi:7")
	require.Equal(t, "qmsvault:test:kpi:7", c.key("kpi:7"))
}
