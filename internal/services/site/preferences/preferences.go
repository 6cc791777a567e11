// Package preferences models per-origin key/value preference storage: the
// place consent and theme choices live between visits.
//
// Storage is the read/write capability. ChangeFeed is implemented by storages
// shared between several independent contexts (tabs) and reports writes made
// by the other contexts.
package preferences

import "errors"

var (
	// ErrUnavailable means the storage cannot be used at all (disabled,
	// private mode, or closed).
	ErrUnavailable = errors.New("preferences: storage unavailable")
	// ErrQuotaExceeded means the write would exceed the storage quota.
	ErrQuotaExceeded = errors.New("preferences: quota exceeded")
	// ErrInvalidKey means the key cannot be represented by the storage.
	ErrInvalidKey = errors.New("preferences: invalid key")
)

// Storage reads and writes string values by key. Implementations report
// failures as errors and never panic.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Event describes a write made by another context sharing the storage.
type Event struct {
	Key      string
	OldValue string
	HadOld   bool
	NewValue string
	// Removed is set when the key was deleted; NewValue is then empty.
	Removed bool
}

// ChangeFeed delivers Events for writes made elsewhere. Delivery is
// best-effort and never reports the subscriber's own writes.
type ChangeFeed interface {
	OnChange(fn func(Event)) (unsubscribe func())
}
