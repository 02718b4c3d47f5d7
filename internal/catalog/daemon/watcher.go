package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

// Runner is what the watcher triggers. *Trigger satisfies it.
type Runner interface {
	RootDir(ctx context.Context) (string, error)
	RunManually(ctx context.Context) (*catsync.Result, error)
}

// WatcherConfig holds configuration for the watcher.
type WatcherConfig struct {
	// Debounce is how long the tree must be quiet before a sync runs.
	// This batches a folder copy into one run (default: 1s)
	Debounce time.Duration

	// Logger for watcher activity (default: no-op)
	Logger *zap.Logger
}

// Watcher triggers syncs when the model root changes.
//
// It watches the root and each immediate subfolder, which is where every
// file the reconciler reads lives.
type Watcher struct {
	runner   Runner
	debounce time.Duration
	logger   *zap.Logger

	watcher *fsnotify.Watcher
	root    string
	watched map[string]bool
	ready   bool // last rewatch succeeded
	warned  bool

	mu        sync.Mutex
	pending   bool
	lastEvent time.Time
}

// NewWatcher creates a watcher. Use Start to begin watching.
func NewWatcher(runner Runner, cfg WatcherConfig) (*Watcher, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		runner:   runner,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		watcher:  fw,
		watched:  make(map[string]bool),
	}, nil
}

// Start watches until ctx is cancelled. It blocks.
//
// An unset or missing root does not stop the watcher: it retries on every
// tick and schedules a sync once the root can be watched.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	w.refresh(ctx)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			if !w.ready && w.refresh(ctx) {
				w.markPending()
			}
			if !w.due() {
				continue
			}
			if _, err := w.runner.RunManually(ctx); err != nil {
				w.logger.Warn("watch-triggered sync failed", zap.Error(err))
			}
			// The root setting may have changed from the web UI.
			w.refresh(ctx)
		}
	}
}

// refresh calls rewatch and reports whether the root is being watched.
// A failure is logged once until the root recovers.
func (w *Watcher) refresh(ctx context.Context) bool {
	err := w.rewatch(ctx)
	if err == nil {
		if w.warned {
			w.logger.Info("root available again, watching", zap.String("root", w.root))
		}
		w.ready, w.warned = true, false
		return true
	}

	w.ready = false
	if w.warned {
		w.logger.Debug("root still unavailable", zap.Error(err))
	} else {
		w.logger.Warn("cannot watch root, retrying", zap.Error(err))
		w.warned = true
	}
	return false
}

// handleEvent records a change and follows new subfolders.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.root {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.add(event.Name)
		}
	}
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		delete(w.watched, event.Name)
	}

	w.logger.Debug("file event", zap.String("op", event.Op.String()), zap.String("path", event.Name))
	w.markPending()
}

func (w *Watcher) markPending() {
	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

// due reports whether a pending change has been quiet long enough, and
// clears it if so.
func (w *Watcher) due() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		return false
	}
	w.pending = false
	return true
}

// rewatch points the watcher at the current root and its subfolders.
func (w *Watcher) rewatch(ctx context.Context) error {
	root, err := w.runner.RootDir(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve root directory: %w", err)
	}
	if strings.TrimSpace(root) == "" {
		return fmt.Errorf("root directory is not set")
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root directory: %w", err)
	}

	if root != w.root {
		for path := range w.watched {
			_ = w.watcher.Remove(path)
		}
		w.watched = make(map[string]bool)
		w.root = root
	}

	if err := w.add(root); err != nil {
		return fmt.Errorf("failed to watch root %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("failed to list root %s: %w", root, err)
	}
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.add(path); err != nil {
			w.logger.Warn("failed to watch folder", zap.String("path", path), zap.Error(err))
		}
	}

	w.logger.Debug("watching", zap.String("root", root), zap.Int("dirs", len(w.watched)))
	return nil
}

func (w *Watcher) add(path string) error {
	if w.watched[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	w.watched[path] = true
	return nil
}
