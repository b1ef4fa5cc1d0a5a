package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher drops cached sounds when their files change on disk. It watches
// parent directories so editors that replace files atomically are seen.
type Watcher struct {
	mu     sync.Mutex
	logger *slog.Logger
	player *Player

	fsw   *fsnotify.Watcher
	paths map[string]struct{}
	dirs  map[string]struct{}

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher creates a watcher invalidating player's cache.
func NewWatcher(player *Player, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		logger: logger,
		player: player,
		paths:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
	}
}

// Start begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create sound watcher: %w", err)
	}
	w.fsw = fsw
	for dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			w.logger.Debug("cannot watch sound directory", "dir", dir, "error", err)
		}
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.watchLoop(ctx)
	return nil
}

// Watch adds a sound file.
func (w *Watcher) Watch(path string) {
	if path == "" {
		return
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths[path] = struct{}{}
	if _, ok := w.dirs[dir]; ok {
		return
	}
	w.dirs[dir] = struct{}{}
	if w.fsw != nil {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Debug("cannot watch sound directory", "dir", dir, "error", err)
		}
	}
}

// Reset forgets every watched file.
func (w *Watcher) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		for dir := range w.dirs {
			_ = w.fsw.Remove(dir)
		}
	}
	clear(w.paths)
	clear(w.dirs)
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	_ = w.fsw.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("sound watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	_, watched := w.paths[path]
	w.mu.Unlock()
	if !watched {
		return
	}

	w.logger.Debug("sound file changed, invalidating cache", "path", path)
	w.player.Invalidate(path)
}
