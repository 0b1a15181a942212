package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photovault/photovault/internal/pkg/env"
)

const isolatedCounterTestRedisDB = 13

func newIsolatedRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       isolatedCounterTestRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %s unavailable (%v)", addr, err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestWebhookCounters(t *testing.T) {
	c := New(newIsolatedRedisClient(t))
	ctx := context.Background()

	require.NoError(t, c.AddWebhook(ctx, "invoice.paid", "applied"))
	require.NoError(t, c.AddWebhook(ctx, "invoice.paid", "applied"))
	require.NoError(t, c.AddWebhook(ctx, "invoice.paid", "duplicate"))
	require.NoError(t, c.AddWebhook(ctx, "", "rejected"))

	counts, err := c.Webhooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []WebhookCount{
		{EventType: "invoice.paid", Result: "applied", Count: 2},
		{EventType: "invoice.paid", Result: "duplicate", Count: 1},
		{EventType: "unknown", Result: "rejected", Count: 1},
	}, counts)

	require.NoError(t, c.Reset(ctx))
	counts, err = c.Webhooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestParseCount(t *testing.T) {
	n, err := parseCount("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = parseCount("x")
	assert.Error(t, err)
}
