// Package watch detects state-file writes made by other processes. Raw
// filesystem events are debounced into at most one reload per quiet window,
// and a corrupt or missing file never replaces the last-known-good
// snapshot.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smallnest/roadclaw/internal/logger"
	"github.com/smallnest/roadclaw/roadmap"
	"github.com/smallnest/roadclaw/store"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet window that coalesces bursts of raw events
// from one logical write.
const DefaultDebounce = 500 * time.Millisecond

// Change is one debounced, successfully reloaded state change.
type Change struct {
	Roadmap *roadmap.Roadmap
	At      time.Time
}

// Watcher watches one project state file.
type Watcher struct {
	path     string
	debounce time.Duration

	fsw     *fsnotify.Watcher
	changes chan Change

	mu       sync.Mutex
	timer    *time.Timer
	snapshot *roadmap.Roadmap
	closed   bool
}

// New creates a watcher for the state file at path. The file's directory is
// watched so the atomic rename-replace is visible; events for sibling files
// are ignored. debounce <= 0 selects DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		debounce: debounce,
		fsw:      fsw,
		changes:  make(chan Change, 1),
	}

	// Seed the last-known-good snapshot; a missing file just means no
	// snapshot yet.
	if r, err := store.Load(path); err == nil {
		w.snapshot = r
	}

	return w, nil
}

// Start runs the watch loop until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Changes delivers debounced state changes. The channel holds one pending
// change; consumers refetch the whole document, so coalescing further is
// harmless.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Snapshot returns the last successfully loaded roadmap, or nil.
func (w *Watcher) Snapshot() *roadmap.Roadmap {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	logger.Info("Watching state file", zap.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Only the state file itself matters; markdown mirrors,
			// config and temp files share the directory.
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			logger.Debug("State file event",
				zap.String("path", w.path),
				zap.String("op", event.Op.String()),
			)
			w.scheduleReload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("Watcher error",
				zap.String("path", w.path),
				zap.Error(err),
			)
		}
	}
}

// scheduleReload restarts the debounce timer. The timer restarts on each
// new event rather than firing early, so one logical write's burst of raw
// events produces a single reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	r, err := store.Load(w.path)
	if err != nil {
		// Keep serving the last-known-good snapshot; never propagate a
		// broken state to viewers.
		var corrupt *store.CorruptStateError
		var notFound *store.NotFoundError
		switch {
		case errors.As(err, &corrupt):
			logger.Warn("State file corrupt, keeping last-known-good snapshot",
				zap.String("path", w.path),
				zap.Error(err),
			)
		case errors.As(err, &notFound):
			logger.Warn("State file disappeared, keeping last-known-good snapshot",
				zap.String("path", w.path),
			)
		default:
			logger.Error("Failed to reload state file",
				zap.String("path", w.path),
				zap.Error(err),
			)
		}
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.snapshot = r
	w.mu.Unlock()

	change := Change{Roadmap: r, At: time.Now().UTC()}
	select {
	case w.changes <- change:
	default:
		// A pending change is already queued; the consumer will see the
		// latest document when it refetches.
	}
}
