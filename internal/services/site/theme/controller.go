package theme

import (
	"log/slog"
	"sync"

	"github.com/louisbranch/vitrine/internal/services/site/consent"
	"github.com/louisbranch/vitrine/internal/services/site/preferences"
)

// Applier puts a theme into effect (for a document, the root marker class).
type Applier interface {
	ApplyTheme(Theme)
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(Theme)

func (f ApplierFunc) ApplyTheme(t Theme) { f(t) }

// ColorScheme reports the OS-level colour preference.
type ColorScheme interface {
	PrefersDark() bool
}

// ColorSchemeFunc adapts a function to ColorScheme.
type ColorSchemeFunc func() bool

func (f ColorSchemeFunc) PrefersDark() bool { return f() }

// State is the controller lifecycle state.
type State uint8

const (
	Initializing State = iota
	Resolved
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller owns the theme for one context. It reads consent at Init,
// persists explicit choices only while functional consent is granted, and
// drops the stored value when that consent is withdrawn.
type Controller struct {
	consent *consent.Store
	storage preferences.Storage
	applier Applier
	scheme  ColorScheme
	logger  *slog.Logger

	mu          sync.Mutex
	state       State
	current     Theme
	unsubscribe func()
	closed      bool
}

// NewController wires a controller; nothing happens until Init.
func NewController(store *consent.Store, storage preferences.Storage, applier Applier, scheme ColorScheme, opts ...Option) *Controller {
	if applier == nil {
		applier = ApplierFunc(func(Theme) {})
	}
	if scheme == nil {
		scheme = ColorSchemeFunc(func() bool { return false })
	}
	c := &Controller{
		consent: store,
		storage: storage,
		applier: applier,
		scheme:  scheme,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Init resolves and applies the initial theme without writing anything, then
// starts following consent changes. Subsequent calls return the current
// theme.
func (c *Controller) Init() Theme {
	c.mu.Lock()
	if c.state == Resolved {
		current := c.current
		c.mu.Unlock()
		return current
	}
	c.mu.Unlock()

	stored, storedOK, err := c.storage.Get(StorageKey)
	if err != nil {
		c.logger.Debug("theme storage read failed", "error", err.Error())
		storedOK = false
	}
	resolved := Resolve(c.consent.IsAllowed(consent.Functional), stored, storedOK, c.scheme.PrefersDark())

	c.mu.Lock()
	c.current = resolved
	c.state = Resolved
	c.followLocked()
	c.mu.Unlock()

	c.applier.ApplyTheme(resolved)
	return resolved
}

// Theme returns the theme in effect.
func (c *Controller) Theme() Theme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle switches to the opposite theme. It reports the new theme and whether
// it was persisted.
func (c *Controller) Toggle() (Theme, bool) {
	next := c.Theme().Opposite()
	return next, c.Set(next)
}

// Set applies t immediately and reports whether it was persisted. Without
// functional consent any stored value is removed instead.
func (c *Controller) Set(t Theme) bool {
	if _, ok := Parse(string(t)); !ok {
		return false
	}
	c.mu.Lock()
	c.current = t
	c.state = Resolved
	c.followLocked()
	c.mu.Unlock()
	c.applier.ApplyTheme(t)

	if !c.consent.IsAllowed(consent.Functional) {
		c.forget()
		return false
	}
	if err := c.storage.Set(StorageKey, string(t)); err != nil {
		c.logger.Warn("theme persist failed", "error", err.Error())
		return false
	}
	return true
}

// Close stops following consent changes.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.closed = true
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// followLocked subscribes to consent changes once. c.mu must be held.
func (c *Controller) followLocked() {
	if c.unsubscribe != nil || c.closed {
		return
	}
	c.unsubscribe = c.consent.Subscribe(c.onConsentChange)
}

// onConsentChange removes the stored theme once functional consent is gone.
// A grant does nothing: the in-memory theme is only written on the next
// explicit choice.
func (c *Controller) onConsentChange(change consent.Change) {
	if change.IsAllowed(consent.Functional) {
		return
	}
	c.forget()
}

func (c *Controller) forget() {
	if err := c.storage.Remove(StorageKey); err != nil {
		c.logger.Warn("theme removal failed", "error", err.Error())
	}
}
