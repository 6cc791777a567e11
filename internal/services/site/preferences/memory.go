package preferences

import (
	"sort"
	"sync"
)

// MemoryOrigin is an in-process origin whose storage is shared by every Tab
// opened on it. Writes are visible to all tabs immediately; change events
// reach the other tabs only when each of them calls Pump, which mirrors a
// browser delivering storage events on a later turn of its event loop.
type MemoryOrigin struct {
	mu       sync.Mutex
	values   map[string]string
	tabs     map[*Tab]struct{}
	disabled bool
	quota    int
}

// NewMemoryOrigin returns an empty origin with no quota.
func NewMemoryOrigin() *MemoryOrigin {
	return &MemoryOrigin{
		values: map[string]string{},
		tabs:   map[*Tab]struct{}{},
	}
}

// SetDisabled makes every operation fail with ErrUnavailable while true.
func (o *MemoryOrigin) SetDisabled(disabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disabled = disabled
}

// SetQuota bounds the total bytes of keys plus values. Zero removes the bound.
func (o *MemoryOrigin) SetQuota(bytes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quota = bytes
}

// Keys returns the stored keys, sorted.
func (o *MemoryOrigin) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.values))
	for key := range o.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// OpenTab attaches a new browsing context to the origin.
func (o *MemoryOrigin) OpenTab() *Tab {
	tab := &Tab{origin: o, listeners: map[int]func(Event){}}
	o.mu.Lock()
	o.tabs[tab] = struct{}{}
	o.mu.Unlock()
	return tab
}

func (o *MemoryOrigin) get(key string) (string, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled {
		return "", false, ErrUnavailable
	}
	value, ok := o.values[key]
	return value, ok, nil
}

func (o *MemoryOrigin) set(from *Tab, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled {
		return ErrUnavailable
	}
	old, hadOld := o.values[key]
	if o.quota > 0 {
		size := o.sizeLocked() + len(value)
		if hadOld {
			size -= len(old)
		} else {
			size += len(key)
		}
		if size > o.quota {
			return ErrQuotaExceeded
		}
	}
	o.values[key] = value
	if hadOld && old == value {
		return nil
	}
	o.broadcastLocked(from, Event{Key: key, OldValue: old, HadOld: hadOld, NewValue: value})
	return nil
}

func (o *MemoryOrigin) remove(from *Tab, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disabled {
		return ErrUnavailable
	}
	old, hadOld := o.values[key]
	if !hadOld {
		return nil
	}
	delete(o.values, key)
	o.broadcastLocked(from, Event{Key: key, OldValue: old, HadOld: true, Removed: true})
	return nil
}

func (o *MemoryOrigin) sizeLocked() int {
	total := 0
	for key, value := range o.values {
		total += len(key) + len(value)
	}
	return total
}

func (o *MemoryOrigin) broadcastLocked(from *Tab, event Event) {
	for tab := range o.tabs {
		if tab == from {
			continue
		}
		tab.enqueue(event)
	}
}

func (o *MemoryOrigin) detach(tab *Tab) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.tabs, tab)
}

// Tab is one browsing context on a MemoryOrigin. It implements Storage and
// ChangeFeed.
type Tab struct {
	origin *MemoryOrigin

	mu        sync.Mutex
	queue     []Event
	listeners map[int]func(Event)
	nextID    int
	closed    bool
}

// Get reads key from the shared storage.
func (t *Tab) Get(key string) (string, bool, error) {
	if t.isClosed() {
		return "", false, ErrUnavailable
	}
	return t.origin.get(key)
}

// Set writes key and queues a change event for every other tab.
func (t *Tab) Set(key, value string) error {
	if t.isClosed() {
		return ErrUnavailable
	}
	return t.origin.set(t, key, value)
}

// Remove deletes key and queues a change event for every other tab.
func (t *Tab) Remove(key string) error {
	if t.isClosed() {
		return ErrUnavailable
	}
	return t.origin.remove(t, key)
}

// OnChange registers fn for events caused by other tabs.
func (t *Tab) OnChange(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// Pending returns how many events are waiting for Pump.
func (t *Tab) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Pump delivers queued events to the listeners in registration order and
// returns how many events were delivered. Events queued by listeners while
// pumping wait for the next call.
func (t *Tab) Pump() int {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, event := range queue {
		for _, fn := range t.snapshotListeners() {
			fn(event)
		}
	}
	return len(queue)
}

// Close detaches the tab; later operations fail with ErrUnavailable.
func (t *Tab) Close() {
	t.mu.Lock()
	t.closed = true
	t.queue = nil
	t.listeners = map[int]func(Event){}
	t.mu.Unlock()
	t.origin.detach(t)
}

func (t *Tab) enqueue(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.queue = append(t.queue, event)
}

func (t *Tab) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tab) snapshotListeners() []func(Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.listeners))
	for id := range t.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		out = append(out, t.listeners[id])
	}
	return out
}
