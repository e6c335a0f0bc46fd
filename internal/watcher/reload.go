package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher watches a store directory with fsnotify and invokes a
// callback after another process rewrites the store files. Only the
// vector blob and metadata sidecar trigger the callback; lock file
// traffic and temp files from atomic writes are ignored.
type StoreWatcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	dir       string
	watched   map[string]bool
	onChange  func([]FileEvent)
	errors    chan error
	stopCh    chan struct{}
	opts      Options

	mu      sync.Mutex
	stopped bool
}

// NewStoreWatcher creates a watcher for the given store directory.
// watchFiles are the base names that should trigger onChange; the
// callback receives the debounced event batch.
func NewStoreWatcher(dir string, watchFiles []string, onChange func([]FileEvent), opts Options) (*StoreWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	watched := make(map[string]bool, len(watchFiles))
	for _, name := range watchFiles {
		watched[name] = true
	}

	return &StoreWatcher{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		dir:       dir,
		watched:   watched,
		onChange:  onChange,
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start begins watching. It blocks until the context is cancelled or
// Stop is called.
func (w *StoreWatcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch store directory %s: %w", w.dir, err)
	}

	go w.forwardDebounced(ctx)

	slog.Debug("store_watcher_started", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleEvent filters and debounces a raw fsnotify event.
func (w *StoreWatcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if !w.watched[base] {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		// Atomic saves land as a rename onto the watched name.
		op = OpModify
	default:
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// forwardDebounced delivers debounced batches to the callback.
func (w *StoreWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			slog.Debug("store_files_changed", slog.Int("events", len(batch)))
			w.onChange(batch)
		}
	}
}

// emitError sends an error without blocking.
func (w *StoreWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// Errors returns a channel of non-fatal watcher errors.
func (w *StoreWatcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases resources.
// Safe to call multiple times.
func (w *StoreWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true

	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
