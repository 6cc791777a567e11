// Package consent owns the visitor's consent record: reading it fail-closed,
// replacing it wholesale, and telling interested code when it changes.
package consent

import (
	"log/slog"
	"sync"

	"github.com/louisbranch/vitrine/internal/services/site/preferences"
)

// Source says where a Change originated.
type Source uint8

const (
	// SameTab changes were written through this Store.
	SameTab Source = iota + 1
	// CrossTab changes were written by another context sharing the storage.
	CrossTab
)

func (s Source) String() string {
	switch s {
	case SameTab:
		return "same-tab"
	case CrossTab:
		return "cross-tab"
	default:
		return "unknown"
	}
}

// Change describes one consent transition. A missing record is reported with
// HadPrevious or HasCurrent set to false.
type Change struct {
	Previous    Record
	HadPrevious bool
	Current     Record
	HasCurrent  bool
	Source      Source
}

// WasAllowed reports whether category was granted before the change.
func (c Change) WasAllowed(category Category) bool {
	return c.HadPrevious && c.Previous.Allows(category)
}

// IsAllowed reports whether category is granted after the change.
func (c Change) IsAllowed(category Category) bool {
	return c.HasCurrent && c.Current.Allows(category)
}

// Revoked reports an allowed-to-denied transition for category.
func (c Change) Revoked(category Category) bool {
	return c.WasAllowed(category) && !c.IsAllowed(category)
}

// Listener receives consent changes.
type Listener func(Change)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type subscription struct {
	id int
	fn Listener
}

// Store reads and writes the consent record in a preferences.Storage.
//
// Same-tab listeners run synchronously, in registration order, before Write
// or Reset returns. Cross-tab changes arrive through the storage's change
// feed once Init has attached to it.
type Store struct {
	storage preferences.Storage
	logger  *slog.Logger

	mu        sync.Mutex
	listeners []subscription
	nextID    int
	gated     map[Category][]string
	detach    func()
}

// NewStore returns a Store over storage. Call Init to receive cross-tab
// changes and Close to stop.
func NewStore(storage preferences.Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		logger:  slog.Default(),
		gated:   map[Category][]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Init attaches to the storage change feed when the storage has one.
// Calling Init twice is a no-op.
func (s *Store) Init() {
	feed, ok := s.storage.(preferences.ChangeFeed)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detach != nil {
		return
	}
	s.detach = feed.OnChange(s.onStorageEvent)
}

// Close detaches from the change feed. Registered listeners stay registered
// but receive no further cross-tab changes.
func (s *Store) Close() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
}

// Gate registers key as state derived from category: it is removed on Reset
// and whenever a written record denies category.
func (s *Store) Gate(category Category, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.gated[category] {
		if existing == key {
			return
		}
	}
	s.gated[category] = append(s.gated[category], key)
}

// Read returns the stored record. A missing, partial or corrupt record, or a
// storage failure, reads as absent.
func (s *Store) Read() (Record, bool) {
	raw, ok, err := s.storage.Get(StorageKey)
	if err != nil {
		s.logger.Debug("consent storage read failed", "error", err.Error())
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	return Decode(raw)
}

// IsAllowed reports whether category is granted. No decision means denied.
func (s *Store) IsAllowed(category Category) bool {
	record, ok := s.Read()
	return ok && record.Allows(category)
}

// Write replaces the stored record and notifies same-tab listeners. When the
// storage rejects the write nothing changes and nobody is notified.
func (s *Store) Write(record Record) {
	record.Necessary = true
	previous, hadPrevious := s.Read()
	if err := s.storage.Set(StorageKey, Encode(record)); err != nil {
		s.logger.Warn("consent write failed", "error", err.Error())
		return
	}
	for _, category := range Categories() {
		if !record.Allows(category) {
			s.scrub(category)
		}
	}
	s.notify(Change{
		Previous:    previous,
		HadPrevious: hadPrevious,
		Current:     record,
		HasCurrent:  true,
		Source:      SameTab,
	})
}

// Reset removes the record and every gated key, then notifies same-tab
// listeners.
func (s *Store) Reset() {
	previous, hadPrevious := s.Read()
	if err := s.storage.Remove(StorageKey); err != nil {
		s.logger.Warn("consent reset failed", "error", err.Error())
		return
	}
	for _, category := range Categories() {
		s.scrub(category)
	}
	s.notify(Change{
		Previous:    previous,
		HadPrevious: hadPrevious,
		Source:      SameTab,
	})
}

// Subscribe registers fn and returns its unsubscribe function.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) onStorageEvent(event preferences.Event) {
	if event.Key != StorageKey {
		return
	}
	change := Change{Source: CrossTab}
	if event.HadOld {
		change.Previous, change.HadPrevious = Decode(event.OldValue)
	}
	if !event.Removed {
		change.Current, change.HasCurrent = Decode(event.NewValue)
	}
	if change.HadPrevious == change.HasCurrent && change.Previous == change.Current {
		return
	}
	s.notify(change)
}

func (s *Store) scrub(category Category) {
	s.mu.Lock()
	keys := append([]string(nil), s.gated[category]...)
	s.mu.Unlock()
	for _, key := range keys {
		if err := s.storage.Remove(key); err != nil {
			s.logger.Warn("consent scrub failed", "key", key, "category", category.String(), "error", err.Error())
		}
	}
}

func (s *Store) notify(change Change) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		listeners[i] = sub.fn
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}
