package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. It is the default backend and
// the reference behaviour for the others.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[strings.TrimSpace(key)]
	if !ok {
		return Entry{}, false, nil
	}
	return clone(entry), true, nil
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	entry, err := Normalize(entry, s.now().UTC())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = clone(entry)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("cache key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) InvalidateTag(_ context.Context, tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return 0, fmt.Errorf("cache tag is required")
	}
	return s.markStale(func(e Entry) bool { return slices.Contains(e.Tags, tag) }), nil
}

func (s *MemoryStore) InvalidatePath(_ context.Context, path string) (int, error) {
	path = NormalizePath(path)
	if path == "" {
		return 0, fmt.Errorf("cache path is required")
	}
	return s.markStale(func(e Entry) bool { return e.Path == path }), nil
}

func (s *MemoryStore) PurgeStale(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if entry.Stale || (!entry.ExpiresAt.IsZero() && entry.ExpiresAt.Before(before)) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) markStale(match func(Entry) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := 0
	for key, entry := range s.entries {
		if !match(entry) {
			continue
		}
		entry.Stale = true
		s.entries[key] = entry
		matched++
	}
	return matched
}

func clone(entry Entry) Entry {
	entry.Tags = slices.Clone(entry.Tags)
	entry.Payload = slices.Clone(entry.Payload)
	return entry
}

var _ Store = (*MemoryStore)(nil)
