// Package watch invalidates cache entries when session files change on disk
// outside this process. The TTL already bounds staleness; the watcher
// tightens the window to near zero for deployments where other tools write
// the same store.
//
// The watcher cannot tell our own writes from foreign ones, so enabling it
// trades cache hit rate for freshness: every append re-derives the session
// from disk on the next read.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Invalidator is the subset of the cache the watcher drives.
type Invalidator interface {
	Invalidate(sessionID string)
}

// Watcher maps filesystem events under the store root to cache
// invalidations keyed by session id.
type Watcher struct {
	root    string
	cache   Invalidator
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher over the store root.
func New(root string, cache Invalidator, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	return &Watcher{
		root:    root,
		cache:   cache,
		watcher: fsw,
		logger:  logger,
	}, nil
}

// Start watches the root and every existing session directory, then runs
// the event loop until Stop.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("watch: create root: %w", err)
	}
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("watch: watch root: %w", err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("watch: list root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := w.watcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
			w.logger.Warn("watch: cannot watch session directory",
				"session", entry.Name(),
				"error", err,
			)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop terminates the event loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch: watcher error", "error", err)
		}
	}
}

// handle maps one event to a cache invalidation, and tracks session
// directories as they come and go.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || rel == ".." {
		return
	}
	sessionID := firstSegment(rel)
	if sessionID == "" {
		return
	}

	// A new session directory needs its own watch (fsnotify is not
	// recursive).
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("watch: cannot watch session directory",
					"session", sessionID,
					"error", err,
				)
			}
		}
	}

	w.cache.Invalidate(sessionID)
}

// firstSegment returns the leading path element of a relative path.
func firstSegment(rel string) string {
	for i := 0; i < len(rel); i++ {
		if os.IsPathSeparator(rel[i]) {
			return rel[:i]
		}
	}
	return rel
}
