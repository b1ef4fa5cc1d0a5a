package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/glint/internal/history"
)

// StateWatcher polls the state file so inhibit and mute changes written by
// another process reach the running daemon.
type StateWatcher struct {
	mu     sync.RWMutex
	logger *slog.Logger

	path         string
	lastModTime  time.Time
	pollInterval time.Duration

	onChangeCallback func()

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewStateWatcher creates a watcher for the state file at path.
func NewStateWatcher(path string, logger *slog.Logger) *StateWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateWatcher{
		logger:       logger,
		path:         path,
		pollInterval: 500 * time.Millisecond,
	}
}

// SetPollInterval sets how often the file is checked.
func (w *StateWatcher) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
}

// SetChangeCallback sets the callback invoked after the file changes.
func (w *StateWatcher) SetChangeCallback(callback func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChangeCallback = callback
}

// Start begins polling. The current modification time is the baseline.
func (w *StateWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.pollInterval
	w.mu.Unlock()

	go w.watchLoop(ctx, interval)
	w.logger.Debug("state watcher started", "path", w.path, "interval", interval)
}

// Stop stops polling and waits for the goroutine to exit.
func (w *StateWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	w.logger.Debug("state watcher stopped")
}

func (w *StateWatcher) watchLoop(ctx context.Context, interval time.Duration) {
	defer close(w.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *StateWatcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Debug("failed to stat state file", "path", w.path, "error", err)
		}
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastModTime)
	if changed {
		w.lastModTime = info.ModTime()
	}
	callback := w.onChangeCallback
	w.mu.Unlock()

	if changed && callback != nil {
		w.logger.Debug("state file changed", "path", w.path)
		callback()
	}
}

// SyncState applies inhibit and mute from the state file. Our own writes
// come back through here as no-ops. The file is read on the caller's
// goroutine.
func (d *Dispatcher) SyncState(ctx context.Context) error {
	if d.statePath == "" {
		return nil
	}
	st, err := history.LoadState(d.statePath)
	if err != nil {
		return err
	}
	_, err = call(ctx, d, func() (bool, error) {
		// A queued write is newer than the file; its own change event
		// brings us back here once it lands.
		if d.writer.Pending() {
			return false, nil
		}
		d.state = *st
		changed := false
		if st.LastInhibit != nil && st.Inhibited != d.inhibited {
			d.inhibited = st.Inhibited
			d.relayout = true
			changed = true
		}
		if st.Muted != d.muted {
			d.muted = st.Muted
			changed = true
		}
		if changed {
			d.logger.Info("state file applied", "inhibited", d.inhibited, "muted", d.muted)
			d.settle()
			d.emitter.StateChanged(d.status())
		}
		return changed, nil
	})
	return err
}

type stateSnapshot struct {
	seq uint64
	st  history.State
}

// stateWriter saves state snapshots on its own goroutine so the loop never
// touches the disk. Only the newest unsaved snapshot is kept.
type stateWriter struct {
	path   string
	logger *slog.Logger

	ch      chan stateSnapshot
	done    chan struct{}
	queued  atomic.Uint64
	written atomic.Uint64
}

func newStateWriter(path string, logger *slog.Logger) *stateWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &stateWriter{
		path:   path,
		logger: logger,
		ch:     make(chan stateSnapshot, 1),
		done:   make(chan struct{}),
	}
}

// Save queues st, replacing any snapshot not yet picked up. It never
// blocks and must only be called from one goroutine.
func (w *stateWriter) Save(st history.State) {
	snap := stateSnapshot{seq: w.queued.Add(1), st: st}
	for {
		select {
		case w.ch <- snap:
			return
		default:
		}
		select {
		case <-w.ch:
		default:
		}
	}
}

// Pending reports whether a queued snapshot has not been written yet.
func (w *stateWriter) Pending() bool {
	return w != nil && w.written.Load() != w.queued.Load()
}

func (w *stateWriter) run() {
	defer close(w.done)
	for snap := range w.ch {
		if err := history.SaveState(w.path, &snap.st); err != nil {
			w.logger.Warn("failed to save daemon state", "path", w.path, "error", err)
		}
		w.written.Store(snap.seq)
	}
}

// Close writes whatever is still queued and stops the writer.
func (w *stateWriter) Close() {
	close(w.ch)
	<-w.done
}
