// Package cachetest holds the behaviour every cache.Store must share.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

// RunStoreContract exercises store behaviour against fresh stores built by
// newStore.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) cache.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("put and get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, cache.Entry{
			Key:       "blog:en-US",
			Path:      "/blog/",
			Tags:      []string{"blog", " blog ", ""},
			Payload:   []byte(`{"posts":[]}`),
			StoredAt:  now,
			ExpiresAt: now.Add(time.Hour),
		}))

		entry, ok, err := store.Get(ctx, "blog:en-US")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/blog", entry.Path)
		assert.Equal(t, []string{"blog"}, entry.Tags)
		assert.Equal(t, []byte(`{"posts":[]}`), entry.Payload)
		assert.False(t, entry.Stale)
		assert.True(t, entry.StoredAt.Equal(now))
		assert.True(t, entry.ExpiresAt.Equal(now.Add(time.Hour)))
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok, err := newStore(t).Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put rejects incomplete entries", func(t *testing.T) {
		store := newStore(t)
		assert.Error(t, store.Put(ctx, cache.Entry{Path: "/", Payload: []byte("x")}))
		assert.Error(t, store.Put(ctx, cache.Entry{Key: "k", Payload: []byte("x")}))
		assert.Error(t, store.Put(ctx, cache.Entry{Key: "k", Path: "/"}))
	})

	t.Run("put replaces entry and its tags", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Put(ctx, cache.Entry{Key: "k", Path: "/a", Tags: []string{"old"}, Payload: []byte("1")}))
		require.NoError(t, store.Put(ctx, cache.Entry{Key: "k", Path: "/b", Tags: []string{"new"}, Payload: []byte("2")}))

		n, err := store.InvalidateTag(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = store.InvalidatePath(ctx, "/a")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		entry, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		assert.False(t, entry.Stale)
		assert.Equal(t, []byte("2"), entry.Payload)
	})

	t.Run("invalidate tag marks every carrier stale", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "blog:en-US", "/blog", "blog")
		seed(t, store, "post:hello:en-US", "/blog/hello", "blog", "post:hello")
		seed(t, store, "home:en-US", "/", "home")

		n, err := store.InvalidateTag(ctx, "blog")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, stale(t, store, "blog:en-US"))
		assert.True(t, stale(t, store, "post:hello:en-US"))
		assert.False(t, stale(t, store, "home:en-US"))

		n, err = store.InvalidateTag(ctx, "blog")
		require.NoError(t, err)
		assert.Equal(t, 2, n, "idempotent")

		n, err = store.InvalidateTag(ctx, "unknown")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("invalidate path covers all locales", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "post:hello:en-US", "/blog/hello", "blog")
		seed(t, store, "post:hello:fr-FR", "/blog/hello", "blog")
		seed(t, store, "post:other:en-US", "/blog/other", "blog")

		n, err := store.InvalidatePath(ctx, "/blog/hello/")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.True(t, stale(t, store, "post:hello:en-US"))
		assert.True(t, stale(t, store, "post:hello:fr-FR"))
		assert.False(t, stale(t, store, "post:other:en-US"))
	})

	t.Run("invalidate rejects blanks", func(t *testing.T) {
		store := newStore(t)
		_, err := store.InvalidateTag(ctx, " ")
		assert.Error(t, err)
		_, err = store.InvalidatePath(ctx, "")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "k", "/p", "t")
		require.NoError(t, store.Delete(ctx, "k"))
		require.NoError(t, store.Delete(ctx, "k"))
		_, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := store.InvalidateTag(ctx, "t")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("purge removes stale and expired", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, "stale", "/s", "x")
		_, err := store.InvalidatePath(ctx, "/s")
		require.NoError(t, err)
		require.NoError(t, store.Put(ctx, cache.Entry{Key: "expired", Path: "/e", Payload: []byte("1"), ExpiresAt: now.Add(-time.Hour)}))
		require.NoError(t, store.Put(ctx, cache.Entry{Key: "fresh", Path: "/f", Payload: []byte("1"), ExpiresAt: now.Add(time.Hour)}))
		seed(t, store, "forever", "/forever", "x2")

		removed, err := store.PurgeStale(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		for key, want := range map[string]bool{"stale": false, "expired": false, "fresh": true, "forever": true} {
			_, ok, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, want, ok, key)
		}
	})
}

func seed(t *testing.T, store cache.Store, key, path string, tags ...string) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), cache.Entry{
		Key:     key,
		Path:    path,
		Tags:    tags,
		Payload: []byte(key),
	}))
}

func stale(t *testing.T, store cache.Store, key string) bool {
	t.Helper()
	entry, ok, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, key)
	return entry.Stale
}
