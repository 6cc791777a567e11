// Package backend picks the cache.Store implementation from configuration.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/rediscache"
	"github.com/louisbranch/vitrine/internal/services/site/cache/sqlite"
)

// Supported backend names.
const (
	Memory = "memory"
	SQLite = "sqlite"
	Redis  = "redis"
)

// Config selects and configures a cache backend.
type Config struct {
	// Backend is one of memory, sqlite or redis. Empty means memory.
	Backend string
	// Path is the SQLite file for the sqlite backend.
	Path string
	// Redis is the shared client for the redis backend.
	Redis redis.UniversalClient
	// Prefix namespaces Redis keys.
	Prefix string
}

// Open builds the configured store.
func Open(ctx context.Context, cfg Config) (cache.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", Memory:
		return cache.NewMemoryStore(), nil
	case SQLite:
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return store, nil
	case Redis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis cache requires a redis client")
		}
		store := rediscache.New(cfg.Redis, rediscache.WithPrefix(cfg.Prefix))
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis cache: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
