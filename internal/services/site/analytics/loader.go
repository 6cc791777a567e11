package analytics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/louisbranch/vitrine/internal/services/site/consent"
)

// Script is a third-party script gated by one consent category.
type Script struct {
	ID       string
	Src      string
	Category consent.Category
}

// TagManagerScript is the tag manager container for id, gated by analytics
// consent.
func TagManagerScript(id string) Script {
	return Script{
		ID:       "gtm",
		Src:      "https://www.googletagmanager.com/gtm.js?id=" + id,
		Category: consent.Analytics,
	}
}

// Fetcher injects a script and blocks until it has loaded or ctx ends.
type Fetcher interface {
	Load(ctx context.Context, script Script) error
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, script Script) error

func (f FetcherFunc) Load(ctx context.Context, script Script) error { return f(ctx, script) }

// Outcome is how a load Task ended.
type Outcome uint8

const (
	Pending Outcome = iota
	Loaded
	// Denied means consent was missing, or was withdrawn while loading.
	Denied
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case Denied:
		return "denied"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Task is one cancellable script load.
type Task struct {
	Script Script

	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	denied  bool
	outcome Outcome
	err     error
}

func deniedTask(script Script) *Task {
	t := &Task{Script: script, done: make(chan struct{}), outcome: Denied, cancel: func() {}}
	close(t.done)
	return t
}

// Done is closed once the task has an outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the current outcome; Pending until Done is closed.
func (t *Task) Outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.outcome, t.err
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

// Cancel aborts an in-flight load; the task ends as Denied.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.denied = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) run(ctx context.Context, fetcher Fetcher) {
	defer close(t.done)
	err := fetcher.Load(ctx, t.Script)

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.denied:
		t.outcome = Denied
	case err != nil:
		t.outcome = Failed
		t.err = err
	default:
		t.outcome = Loaded
	}
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithRuntime pushes consent commands to r.
func WithRuntime(r Runtime) LoaderOption {
	return func(l *Loader) { l.runtime = r }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader starts each configured script once its category is allowed and
// re-evaluates on every consent change. Scripts that already loaded stay
// loaded; in-flight loads are cancelled when consent is withdrawn.
type Loader struct {
	consent *consent.Store
	fetcher Fetcher
	scripts []Script
	runtime Runtime
	logger  *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	stop        context.CancelFunc
	tasks       map[string]*Task
	unsubscribe func()
}

// NewLoader builds a loader for scripts.
func NewLoader(store *consent.Store, fetcher Fetcher, scripts []Script, opts ...LoaderOption) *Loader {
	l := &Loader{
		consent: store,
		fetcher: fetcher,
		scripts: append([]Script(nil), scripts...),
		logger:  slog.Default(),
		tasks:   map[string]*Task{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Init pushes the default consent command (and the stored decision, if any),
// evaluates every script, and subscribes to consent changes. ctx bounds every
// load the loader starts.
func (l *Loader) Init(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.mu.Lock()
	if l.ctx != nil {
		l.mu.Unlock()
		return
	}
	l.ctx, l.stop = context.WithCancel(ctx)
	l.mu.Unlock()

	if l.runtime != nil {
		l.runtime.Push(DefaultConsent())
		if record, ok := l.consent.Read(); ok {
			l.runtime.Push(UpdateFor(record, true))
		}
	}
	l.evaluate()

	unsubscribe := l.consent.Subscribe(l.onConsentChange)
	l.mu.Lock()
	l.unsubscribe = unsubscribe
	l.mu.Unlock()
}

// Task returns the latest task for the script id.
func (l *Loader) Task(id string) (*Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	task, ok := l.tasks[id]
	return task, ok
}

// Close unsubscribes and cancels every in-flight load.
func (l *Loader) Close() {
	l.mu.Lock()
	unsubscribe := l.unsubscribe
	l.unsubscribe = nil
	stop := l.stop
	tasks := make([]*Task, 0, len(l.tasks))
	for _, task := range l.tasks {
		tasks = append(tasks, task)
	}
	l.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	for _, task := range tasks {
		if task.Outcome() == Pending {
			task.Cancel()
		}
	}
	if stop != nil {
		stop()
	}
}

func (l *Loader) onConsentChange(change consent.Change) {
	if l.runtime != nil {
		l.runtime.Push(UpdateFor(change.Current, change.HasCurrent))
	}
	l.evaluate()
}

func (l *Loader) evaluate() {
	for _, script := range l.scripts {
		allowed := l.consent.IsAllowed(script.Category)

		l.mu.Lock()
		existing, ok := l.tasks[script.ID]
		ctx := l.ctx
		l.mu.Unlock()

		if ok {
			outcome := existing.Outcome()
			if outcome == Loaded {
				continue
			}
			if outcome == Pending {
				if !allowed {
					existing.Cancel()
				}
				continue
			}
		}
		if !allowed {
			if !ok {
				l.store(deniedTask(script))
			}
			continue
		}
		l.start(ctx, script)
	}
}

func (l *Loader) start(ctx context.Context, script Script) {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &Task{Script: script, cancel: cancel, done: make(chan struct{})}
	l.store(task)
	go func() {
		defer cancel()
		task.run(taskCtx, l.fetcher)
		if outcome, err := task.Wait(context.Background()); outcome == Failed {
			l.logger.Warn("script load failed", "script", script.ID, "error", err)
		}
	}()
}

func (l *Loader) store(task *Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks[task.Script.ID] = task
}
