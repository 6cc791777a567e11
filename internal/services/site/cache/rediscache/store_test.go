//go:build integration

package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/cachetest"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	terminateOnCleanup(t, container)

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(pingCtx).Err())
	return client
}

func terminateOnCleanup(t *testing.T, container testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})
}

func TestStoreContract(t *testing.T) {
	client := startRedis(t)
	cachetest.RunStoreContract(t, func(t *testing.T) cache.Store {
		require.NoError(t, client.FlushAll(context.Background()).Err())
		return New(client)
	})
}

func TestEntriesCarryRedisExpiry(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := New(client, WithPrefix("test:"), WithRetention(time.Minute))

	require.NoError(t, store.Put(ctx, cache.Entry{
		Key:       "reviews:en-US",
		Path:      "/",
		Payload:   []byte("[]"),
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	ttl, err := client.PTTL(ctx, "test:entry:reviews:en-US").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
	assert.LessOrEqual(t, ttl, time.Hour+time.Minute)

	require.NoError(t, store.Put(ctx, cache.Entry{Key: "home", Path: "/", Payload: []byte("x")}))
	ttl, err = client.PTTL(ctx, "test:entry:home").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}

func TestInvalidationPrunesEvictedMembers(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := New(client)

	require.NoError(t, store.Put(ctx, cache.Entry{Key: "a", Path: "/blog", Tags: []string{"blog"}, Payload: []byte("1")}))
	require.NoError(t, client.Del(ctx, "vitrine:cache:entry:a").Err())

	n, err := store.InvalidateTag(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	members, err := client.SMembers(ctx, "vitrine:cache:tag:blog").Result()
	require.NoError(t, err)
	assert.Empty(t, members)
}
