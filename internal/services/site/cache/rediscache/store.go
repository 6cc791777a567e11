// Package rediscache shares the content cache between site replicas through
// Redis. Entries are hashes; tag and path indexes are sets of entry keys.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

const (
	defaultPrefix    = "vitrine:cache:"
	defaultRetention = 24 * time.Hour
)

// markStaleScript marks every live member of an index set stale and prunes
// members whose entry is gone. It returns the number of entries marked.
var markStaleScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local marked = 0
for _, key in ipairs(members) do
  local entry = ARGV[1] .. key
  if redis.call('EXISTS', entry) == 1 then
    redis.call('HSET', entry, 'stale', '1')
    marked = marked + 1
  else
    redis.call('SREM', KEYS[1], key)
  end
end
return marked
`)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every Redis key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long Redis keeps an entry past its expiry before
// evicting it on its own.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// Store is a Redis-backed cache.Store.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// New builds a store over client. The caller keeps ownership of client;
// Close does not close it.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, retention: defaultRetention, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *Store) tagKey(tag string) string   { return s.prefix + "tag:" + tag }
func (s *Store) pathKey(path string) string { return s.prefix + "path:" + path }
func (s *Store) allKey() string             { return s.prefix + "keys" }
func (s *Store) entryPrefix() string        { return s.prefix + "entry:" }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *Store) Close() error {
	return nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	key = strings.TrimSpace(key)
	fields, err := s.client.HGetAll(ctx, s.entryKey(key)).Result()
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}
	if len(fields) == 0 {
		return cache.Entry{}, false, nil
	}
	entry := cache.Entry{
		Key:       key,
		Path:      fields["path"],
		Payload:   []byte(fields["payload"]),
		Stale:     fields["stale"] == "1",
		StoredAt:  parseMillis(fields["stored_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
	}
	if raw := fields["tags"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &entry.Tags); err != nil {
			return cache.Entry{}, false, fmt.Errorf("decode cache tags: %w", err)
		}
	}
	return entry, true, nil
}

// Put replaces an entry and moves it between index sets.
func (s *Store) Put(ctx context.Context, entry cache.Entry) error {
	entry, err := cache.Normalize(entry, s.now().UTC())
	if err != nil {
		return err
	}
	oldPath, oldTags, err := s.indexes(ctx, entry.Key)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("encode cache tags: %w", err)
	}

	entryKey := s.entryKey(entry.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.unindex(ctx, pipe, entry.Key, oldPath, oldTags)
		pipe.Del(ctx, entryKey)
		pipe.HSet(ctx, entryKey,
			"path", entry.Path,
			"tags", string(tags),
			"payload", entry.Payload,
			"stale", boolString(entry.Stale),
			"stored_at", strconv.FormatInt(entry.StoredAt.UnixMilli(), 10),
			"expires_at", formatMillis(entry.ExpiresAt),
		)
		if !entry.ExpiresAt.IsZero() {
			pipe.PExpireAt(ctx, entryKey, entry.ExpiresAt.Add(s.retention))
		}
		pipe.SAdd(ctx, s.allKey(), entry.Key)
		pipe.SAdd(ctx, s.pathKey(entry.Path), entry.Key)
		for _, tag := range entry.Tags {
			pipe.SAdd(ctx, s.tagKey(tag), entry.Key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry and its index memberships.
func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	path, tags, err := s.indexes(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.unindex(ctx, pipe, key, path, tags)
		pipe.SRem(ctx, s.allKey(), key)
		pipe.Del(ctx, s.entryKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// InvalidateTag marks every entry carrying tag stale.
func (s *Store) InvalidateTag(ctx context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, fmt.Errorf("cache tag is required")
	}
	return s.markStale(ctx, s.tagKey(tag))
}

// InvalidatePath marks every entry for path stale.
func (s *Store) InvalidatePath(ctx context.Context, path string) (int, error) {
	path = cache.NormalizePath(path)
	if path == "" {
		return 0, fmt.Errorf("cache path is required")
	}
	return s.markStale(ctx, s.pathKey(path))
}

// PurgeStale deletes stale entries and entries expired before the cutoff.
func (s *Store) PurgeStale(ctx context.Context, before time.Time) (int, error) {
	keys, err := s.client.SMembers(ctx, s.allKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}
	removed := 0
	for _, key := range keys {
		values, err := s.client.HMGet(ctx, s.entryKey(key), "stale", "expires_at").Result()
		if err != nil {
			return removed, fmt.Errorf("read cache entry %s: %w", key, err)
		}
		if values[0] == nil && values[1] == nil {
			if err := s.client.SRem(ctx, s.allKey(), key).Err(); err != nil {
				return removed, fmt.Errorf("prune cache key %s: %w", key, err)
			}
			continue
		}
		staleFlag, _ := values[0].(string)
		expiresRaw, _ := values[1].(string)
		expiresAt := parseMillis(expiresRaw)
		if staleFlag != "1" && (expiresAt.IsZero() || !expiresAt.Before(before)) {
			continue
		}
		if err := s.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) markStale(ctx context.Context, indexKey string) (int, error) {
	marked, err := markStaleScript.Run(ctx, s.client, []string{indexKey}, s.entryPrefix()).Int()
	if err != nil {
		return 0, fmt.Errorf("mark cache stale: %w", err)
	}
	return marked, nil
}

func (s *Store) indexes(ctx context.Context, key string) (string, []string, error) {
	values, err := s.client.HMGet(ctx, s.entryKey(key), "path", "tags").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", nil, fmt.Errorf("read cache indexes: %w", err)
	}
	if len(values) < 2 {
		return "", nil, nil
	}
	path, _ := values[0].(string)
	var tags []string
	if raw, ok := values[1].(string); ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &tags)
	}
	return path, tags, nil
}

func (s *Store) unindex(ctx context.Context, pipe redis.Pipeliner, key, path string, tags []string) {
	if path != "" {
		pipe.SRem(ctx, s.pathKey(path), key)
	}
	for _, tag := range tags {
		pipe.SRem(ctx, s.tagKey(tag), key)
	}
}

func boolString(value bool) string {
	if value {
		return "1"
	}
	return "0"
}

func formatMillis(value time.Time) string {
	if value.IsZero() {
		return "0"
	}
	return strconv.FormatInt(value.UnixMilli(), 10)
}

func parseMillis(raw string) time.Time {
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis).UTC()
}

var _ cache.Store = (*Store)(nil)
