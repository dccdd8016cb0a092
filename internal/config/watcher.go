package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to a config file using fsnotify, falling back to
// polling when native notifications are unavailable. It watches the parent
// directory because [Config.Save] replaces the file by rename.
type Watcher struct {
	// path is the config file being monitored.
	path string
	// events delivers a signal each time the file changes. Buffered to 1 so
	// back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to stop the goroutines.
	done chan struct{}
	// fsw is the fsnotify watcher; nil when polling.
	fsw *fsnotify.Watcher
	// once makes [Watcher.Close] idempotent.
	once sync.Once
	// polling is true once the watcher has fallen back to stat polling.
	polling atomic.Bool
	// pollInterval is the time between stat calls in polling mode.
	pollInterval time.Duration
	logger       *slog.Logger
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithPollInterval sets the polling interval used in fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithForcePolling skips fsnotify and polls from the start.
func WithForcePolling() WatcherOption {
	return func(w *Watcher) { w.polling.Store(true) }
}

// WithWatcherLogger sets the watcher's logger. Defaults to [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher starts watching the config file at path. The file need not
// exist yet; its directory must.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:         filepath.Clean(path),
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: 2 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := filepath.Dir(w.path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("config directory %s is not accessible", dir)
	}

	if w.polling.Load() {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		w.logger.Info("cannot watch config directory, falling back to polling", "path", dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}
	w.fsw = fsw
	go w.watch()
	return w, nil
}

// Events returns a channel that receives a signal when the config changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

// watch forwards write, create and rename events for the config file. On an
// fsnotify error it switches to polling.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.startPolling()
			return
		}
	}
}

// startPolling records the file's current state before the polling
// goroutine starts, so a write right after it returns is still reported.
func (w *Watcher) startPolling() {
	w.polling.Store(true)
	lastMod, lastSize := w.stat()
	go w.poll(lastMod, lastSize)
}

// poll stats the config file on a ticker and notifies when its modification
// time or size differs from the last seen state.
func (w *Watcher) poll(lastMod time.Time, lastSize int64) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, size := w.stat()
			if !mod.Equal(lastMod) || size != lastSize {
				lastMod, lastSize = mod, size
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

// notify sends one pending signal; extra changes coalesce into it.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
