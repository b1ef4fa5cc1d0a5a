package history

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/glint/internal/model"
)

// DefaultLength is the number of entries kept when no limit is configured.
const DefaultLength = 500

type writeOp struct {
	entry Entry
	clear bool
}

// Recorder keeps a bounded in-memory history and appends to a JSONL file on
// a writer goroutine, so Record never blocks on disk.
type Recorder struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	file    *JSONLFile
	entries []Entry // oldest first
	limit   int
	now     func() time.Time

	fileCount int

	writeCh chan writeOp
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewMemory creates a recorder with no backing file.
func NewMemory(limit int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = DefaultLength
	}
	return &Recorder{
		logger:  logger,
		limit:   limit,
		now:     time.Now,
		writeCh: make(chan writeOp, 64),
	}
}

// Open creates a recorder backed by the file at path and loads its most
// recent entries.
func Open(path string, limit int, logger *slog.Logger) (*Recorder, error) {
	r := NewMemory(limit, logger)

	file, err := OpenJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	entries, err := file.Load()
	if err != nil {
		r.logger.Warn("history file partially loaded", "path", path, "error", err)
	}

	r.file = file
	r.fileCount = len(entries)
	if len(entries) > r.limit {
		entries = entries[len(entries)-r.limit:]
	}
	r.entries = entries
	r.logger.Debug("loaded history", "path", path, "entries", len(entries))
	return r, nil
}

// Start launches the writer goroutine. It is a no-op for memory recorders.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.file == nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.running = true
	go r.writeLoop()
}

// Stop flushes pending writes, compacts the file and closes it.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		if r.file != nil {
			return r.file.Close()
		}
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh
	if err := r.compact(); err != nil {
		r.logger.Warn("failed to compact history", "error", err)
	}
	return r.file.Close()
}

// Record adds a closed notification. Transient notifications are skipped.
func (r *Recorder) Record(ev model.ClosedEvent) {
	if ev.Notification.Hints.Transient {
		return
	}
	entry, err := NewEntry(ev, r.now())
	if err != nil {
		r.logger.Warn("failed to record history", "id", ev.ID, "error", err)
		return
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if over := len(r.entries) - r.limit; over > 0 {
		r.entries = append(r.entries[:0], r.entries[over:]...)
	}
	running := r.running
	r.mu.Unlock()

	if running {
		r.enqueue(writeOp{entry: entry})
	}
}

// Recent returns up to limit entries, newest first. A limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out
}

// Len returns the number of entries in memory.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all entries from memory and, asynchronously, from disk.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.entries = nil
	running := r.running
	r.mu.Unlock()

	if running {
		r.enqueue(writeOp{clear: true})
	}
}

func (r *Recorder) enqueue(op writeOp) {
	select {
	case r.writeCh <- op:
	default:
		r.logger.Warn("history writer busy, entry kept in memory only")
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.doneCh)
	for {
		select {
		case op := <-r.writeCh:
			r.apply(op)
		case <-r.stopCh:
			for {
				select {
				case op := <-r.writeCh:
					r.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(op writeOp) {
	if op.clear {
		if err := r.file.Rewrite(nil); err != nil {
			r.logger.Warn("failed to clear history file", "error", err)
		}
		r.fileCount = 0
		return
	}

	if err := r.file.Append(op.entry); err != nil {
		r.logger.Warn("failed to append history", "error", err)
		return
	}
	r.fileCount++
	if r.fileCount > 2*r.limit {
		if err := r.compact(); err != nil {
			r.logger.Warn("failed to compact history", "error", err)
		}
	}
}

// compact rewrites the file with only the in-memory window.
func (r *Recorder) compact() error {
	r.mu.RLock()
	entries := append([]Entry(nil), r.entries...)
	r.mu.RUnlock()

	if r.fileCount <= len(entries) {
		return nil
	}
	if err := r.file.Rewrite(entries); err != nil {
		return err
	}
	r.fileCount = len(entries)
	return nil
}
