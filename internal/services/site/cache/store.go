// Package cache stores rendered content keyed by request, indexed by tag and
// path so editorial changes can invalidate exactly the affected entries.
//
// Cache data is always derived: any entry can be discarded and rebuilt from
// the content service.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry is one cached payload and its freshness metadata.
type Entry struct {
	Key     string
	Path    string
	Tags    []string
	Payload []byte
	// Stale is set by invalidation; a stale entry is never served.
	Stale     bool
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry may be served at now.
func (e Entry) Fresh(now time.Time) bool {
	if e.Stale {
		return false
	}
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// Store persists entries. InvalidateTag and InvalidatePath mark every
// matching entry stale and report how many matched; both are idempotent.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	InvalidateTag(ctx context.Context, tag string) (int, error)
	InvalidatePath(ctx context.Context, path string) (int, error)
	// PurgeStale deletes stale entries and entries that expired before the
	// cutoff, returning how many were removed.
	PurgeStale(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Normalize validates entry and fills StoredAt. Stores call it from Put.
func Normalize(entry Entry, now time.Time) (Entry, error) {
	entry.Key = strings.TrimSpace(entry.Key)
	if entry.Key == "" {
		return Entry{}, fmt.Errorf("cache key is required")
	}
	entry.Path = NormalizePath(entry.Path)
	if entry.Path == "" {
		return Entry{}, fmt.Errorf("cache path is required")
	}
	if len(entry.Payload) == 0 {
		return Entry{}, fmt.Errorf("cache payload is required")
	}
	tags := make([]string, 0, len(entry.Tags))
	seen := make(map[string]struct{}, len(entry.Tags))
	for _, tag := range entry.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	entry.Tags = tags
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now
	}
	entry.StoredAt = entry.StoredAt.UTC()
	if !entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.ExpiresAt.UTC()
	}
	return entry, nil
}

// NormalizePath trims whitespace and a trailing slash so "/blog/" and
// "/blog" invalidate the same entries.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
