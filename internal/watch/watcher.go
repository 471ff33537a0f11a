// Package watch re-runs a callback whenever the module registry file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce batches the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Triggers      int
	Errors        int
	LastEventTime time.Time
	LastEventType string
}

// RegistryWatcher watches one file. The parent directory is watched so that
// editors that save by rename-and-replace are still picked up.
type RegistryWatcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	path     string
	dir      string
	onChange func(context.Context)
	debounce time.Duration
	pending  time.Time
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	stats    Stats
}

// Option configures a RegistryWatcher.
type Option func(*RegistryWatcher)

// WithDebounce sets the quiet period before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *RegistryWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *RegistryWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for path. onChange runs on the watcher goroutine, so
// invocations never overlap.
func New(path string, onChange func(context.Context), opts ...Option) (*RegistryWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &RegistryWatcher{
		watcher:  fw,
		path:     abs,
		dir:      filepath.Dir(abs),
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. It does not block.
func (w *RegistryWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Unlock()
		// The watcher is unusable after a failed Start.
		_ = w.watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("watching registry", zap.String("path", w.path))
	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *RegistryWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("close watcher", zap.Error(err))
	}
	w.logger.Debug("watcher stopped")
}

// Done is closed once the event loop has exited.
func (w *RegistryWatcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of watcher activity.
func (w *RegistryWatcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *RegistryWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.fireIfQuiet(ctx)
		}
	}
}

func (w *RegistryWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var eventType string
	switch {
	case event.Has(fsnotify.Create):
		eventType = "create"
	case event.Has(fsnotify.Write):
		eventType = "modify"
	case event.Has(fsnotify.Rename):
		eventType = "rename"
	case event.Has(fsnotify.Remove):
		// Nothing to classify until the file comes back.
		w.logger.Warn("registry removed", zap.String("path", w.path))
		return
	default:
		return
	}

	w.logger.Debug("registry event", zap.String("type", eventType))
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventType = eventType
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *RegistryWatcher) fireIfQuiet(ctx context.Context) {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.stats.Triggers++
	w.mu.Unlock()

	w.logger.Info("registry changed, re-running")
	if w.onChange != nil {
		w.onChange(ctx)
	}
}
