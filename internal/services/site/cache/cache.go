package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/louisbranch/vitrine/internal/platform/metrics"
	"github.com/louisbranch/vitrine/internal/platform/timeouts"
)

// Request describes what to cache for one Fetch.
type Request struct {
	Key  string
	Path string
	Tags []string
	// TTL bounds freshness independently of invalidation. Zero means the
	// entry lives until invalidated.
	TTL time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records lookups and invalidations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache is a read-through layer over a Store. Storage failures degrade to
// uncached loads; they never fail a request on their own.
type Cache struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	loads   singleflight.Group

	// generations counts invalidations per "tag:" and "path:" scope.
	mu          sync.Mutex
	generations map[string]uint64
}

// New wraps store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, logger: slog.Default(), now: time.Now, generations: map[string]uint64{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Store returns the backing store.
func (c *Cache) Store() Store {
	return c.store
}

// Fetch returns the cached payload for req.Key when fresh. Otherwise it calls
// load (once per key across concurrent callers), stores the result under
// req's path and tags, and returns it. Load errors are returned and never
// cached.
//
// The shared load runs detached from any single caller, bounded by
// timeouts.Upstream; each caller still stops waiting when its own ctx ends.
// A load overlapping an invalidation of req's path or tags is returned but
// not stored, and callers arriving after the invalidation start a new load.
func (c *Cache) Fetch(ctx context.Context, req Request, load func(context.Context) ([]byte, error)) ([]byte, error) {
	entry, ok, err := c.store.Get(ctx, req.Key)
	switch {
	case err != nil:
		c.metrics.ObserveCacheLookup("error")
		c.logger.WarnContext(ctx, "cache read failed", "key", req.Key, "error", err.Error())
	case ok && entry.Fresh(c.now()):
		c.metrics.ObserveCacheLookup("hit")
		return entry.Payload, nil
	case ok:
		c.metrics.ObserveCacheLookup("stale")
		c.drop(ctx, req.Key)
	default:
		c.metrics.ObserveCacheLookup("miss")
	}

	generation := c.generation(req)
	flight := req.Key + "#" + strconv.FormatUint(generation, 10)
	results := c.loads.DoChan(flight, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Upstream)
		defer cancel()
		payload, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if c.generation(req) != generation {
			c.logger.InfoContext(loadCtx, "cache load overlapped invalidation, not stored", "key", req.Key)
			return payload, nil
		}
		c.put(loadCtx, req, payload)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// FetchJSON is Fetch for values stored as JSON. A cached payload that no
// longer decodes into T is dropped and reloaded.
func FetchJSON[T any](ctx context.Context, c *Cache, req Request, load func(context.Context) (T, error)) (T, error) {
	var zero T
	encode := func(ctx context.Context) ([]byte, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode cache payload: %w", err)
		}
		return payload, nil
	}

	payload, err := c.Fetch(ctx, req, encode)
	if err != nil {
		return zero, err
	}
	var value T
	if err := json.Unmarshal(payload, &value); err == nil {
		return value, nil
	}
	c.logger.WarnContext(ctx, "cache payload undecodable, reloading", "key", req.Key)
	c.drop(ctx, req.Key)
	return load(ctx)
}

// InvalidateTag marks every entry carrying tag stale.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) error {
	ctx, span := otel.Tracer("github.com/louisbranch/vitrine/internal/services/site/cache").Start(ctx, "cache.invalidate_tag")
	defer span.End()
	span.SetAttributes(attribute.String("cache.tag", tag))

	c.bump(tagScope(tag))
	matched, err := c.store.InvalidateTag(ctx, tag)
	if err != nil {
		return fmt.Errorf("invalidate tag %q: %w", tag, err)
	}
	c.metrics.ObserveInvalidation("tag")
	c.logger.InfoContext(ctx, "cache tag invalidated", "tag", tag, "entries", matched)
	return nil
}

// InvalidatePath marks every entry rendered for path stale, in all locales.
func (c *Cache) InvalidatePath(ctx context.Context, path string) error {
	ctx, span := otel.Tracer("github.com/louisbranch/vitrine/internal/services/site/cache").Start(ctx, "cache.invalidate_path")
	defer span.End()
	span.SetAttributes(attribute.String("cache.path", path))

	c.bump(pathScope(path))
	matched, err := c.store.InvalidatePath(ctx, path)
	if err != nil {
		return fmt.Errorf("invalidate path %q: %w", path, err)
	}
	c.metrics.ObserveInvalidation("path")
	c.logger.InfoContext(ctx, "cache path invalidated", "path", path, "entries", matched)
	return nil
}

// RunPurger deletes stale and long-expired entries every interval until ctx
// ends. Entries are kept for grace after expiry.
func (c *Cache) RunPurger(ctx context.Context, interval, grace time.Duration) error {
	if interval <= 0 {
		interval = timeouts.CachePurgeInterval
	}
	if grace < 0 {
		grace = timeouts.CachePurgeGrace
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Purge(ctx, grace)
		}
	}
}

// Purge runs one purge pass and returns how many entries it removed.
func (c *Cache) Purge(ctx context.Context, grace time.Duration) int {
	removed, err := c.store.PurgeStale(ctx, c.now().Add(-grace))
	if err != nil {
		c.logger.WarnContext(ctx, "cache purge failed", "error", err.Error())
		return 0
	}
	if removed > 0 {
		c.logger.InfoContext(ctx, "cache purged", "entries", removed)
	}
	return removed
}

func tagScope(tag string) string {
	return "tag:" + tag
}

func pathScope(path string) string {
	return "path:" + NormalizePath(path)
}

// bump records an invalidation of scope. It runs before the store is
// touched so loads already in flight see it when they finish.
func (c *Cache) bump(scope string) {
	c.mu.Lock()
	c.generations[scope]++
	c.mu.Unlock()
}

// generation sums the invalidation counters of req's path and tags. The sum
// only grows, so any invalidation between two reads changes it.
func (c *Cache) generation(req Request) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	sum := c.generations[pathScope(req.Path)]
	for _, tag := range req.Tags {
		sum += c.generations[tagScope(tag)]
	}
	return sum
}

func (c *Cache) put(ctx context.Context, req Request, payload []byte) {
	now := c.now().UTC()
	entry := Entry{
		Key:      req.Key,
		Path:     req.Path,
		Tags:     req.Tags,
		Payload:  payload,
		StoredAt: now,
	}
	if req.TTL > 0 {
		entry.ExpiresAt = now.Add(req.TTL)
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", req.Key, "error", err.Error())
	}
}

func (c *Cache) drop(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err.Error())
	}
}
