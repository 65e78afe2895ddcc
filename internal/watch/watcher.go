// Package watch reloads models when their artifact directories change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/luserve/luserve/internal/pkg/logger"
)

// DefaultBatchDelay is how long the watcher waits for a burst of writes to
// settle before reloading.
const DefaultBatchDelay = 500 * time.Millisecond

// reloadTimeout bounds a single reload.
const reloadTimeout = 30 * time.Second

// ReloadFunc reloads the models. An error keeps the previous models.
type ReloadFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	// Dirs are the model directories to watch. Empty entries are skipped.
	Dirs []string
	// BatchDelay defaults to DefaultBatchDelay.
	BatchDelay time.Duration
	// Reload is called once per batch of changes.
	Reload ReloadFunc
}

// Watcher watches model directories and calls Reload after they change.
// Only .json artifact files trigger a reload; the .tmp files written
// during a save are ignored.
type Watcher struct {
	dirs   []string
	reload ReloadFunc
	log    *logger.Logger

	// Batch processing
	pendingMu  sync.Mutex
	pending    map[string]struct{}
	batchTimer *time.Timer
	batchDelay time.Duration

	// Stats
	statsMu    sync.Mutex
	reloads    int
	failures   int
	lastReload time.Time

	// Lifecycle
	ctx      context.Context
	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. Directories need not exist yet: their parents are
// watched so a directory created by a later training run is picked up.
func New(cfg Config, log *logger.Logger) (*Watcher, error) {
	if cfg.Reload == nil {
		return nil, errors.New("watch: reload function is required")
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}

	var dirs []string
	for _, d := range cfg.Dirs {
		if d == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, abs)
	}
	if len(dirs) == 0 {
		return nil, errors.New("watch: no directories to watch")
	}

	return &Watcher{
		dirs:       dirs,
		reload:     cfg.Reload,
		log:        log,
		pending:    make(map[string]struct{}),
		batchDelay: cfg.BatchDelay,
		ctx:        context.Background(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start watches until ctx is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsWatcher.Close()

	w.pendingMu.Lock()
	w.ctx = ctx
	w.pendingMu.Unlock()

	for _, dir := range w.dirs {
		if err := w.add(fsWatcher, dir); err != nil {
			return err
		}
	}

	w.log.Info("Watching model directories", "dirs", w.dirs, "batch_delay", w.batchDelay)
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case <-w.done:
			w.stopTimer()
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, fsWatcher)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error", "error", err)
		}
	}
}

// add watches dir and its parent. A missing parent is an error since
// nothing could ever create the model directory below it.
func (w *Watcher) add(fsWatcher *fsnotify.Watcher, dir string) error {
	parent := filepath.Dir(dir)
	if err := fsWatcher.Add(parent); err != nil {
		return fmt.Errorf("watching %s: %w", parent, err)
	}
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		if err := fsWatcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event, fsWatcher *fsnotify.Watcher) {
	if event.Op == fsnotify.Chmod {
		return
	}

	path := filepath.Clean(event.Name)

	// A model directory was (re)created: watch it and reload, since its
	// files may have been written before the watch was added.
	if w.isModelDir(path) {
		if event.Has(fsnotify.Create) {
			if err := fsWatcher.Add(path); err != nil {
				w.log.Warn("Failed to watch model directory", "dir", path, "error", err)
			}
		}
		w.enqueue(path)
		return
	}

	if !w.isModelDir(filepath.Dir(path)) || filepath.Ext(path) != ".json" {
		return
	}
	w.enqueue(path)
}

func (w *Watcher) isModelDir(path string) bool {
	for _, d := range w.dirs {
		if path == d {
			return true
		}
	}
	return false
}

func (w *Watcher) enqueue(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}

	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.batchTimer = time.AfterFunc(w.batchDelay, w.processBatch)
}

func (w *Watcher) processBatch() {
	w.pendingMu.Lock()
	changed := len(w.pending)
	w.pending = make(map[string]struct{})
	parent := w.ctx
	w.pendingMu.Unlock()

	if changed == 0 || parent.Err() != nil {
		return
	}

	w.log.Info("Model files changed, reloading", "changed", changed)

	ctx, cancel := context.WithTimeout(parent, reloadTimeout)
	defer cancel()

	err := w.reload(ctx)

	w.statsMu.Lock()
	if err != nil {
		w.failures++
	} else {
		w.reloads++
		w.lastReload = time.Now()
	}
	w.statsMu.Unlock()

	if err != nil {
		w.log.Error("Model reload failed, keeping previous models", "error", err)
	}
}

func (w *Watcher) stopTimer() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
}

// Ready is closed once Start has added its watches.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Stop ends Start. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Stats returns the number of successful and failed reloads and the time
// of the last successful one.
func (w *Watcher) Stats() (reloads, failures int, last time.Time) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return w.reloads, w.failures, w.lastReload
}
