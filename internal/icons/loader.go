package icons

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/glint/internal/model"
)

// maxFileSize bounds icon files read from disk.
const maxFileSize = 8 << 20

// Request asks for the icon of one notification generation.
type Request struct {
	ID  uint32
	Gen uint64
	// Source is a path, file:// URI or theme icon name. Data takes
	// precedence when set.
	Source string
	Data   *model.RawImage
	Size   int
}

// Result is the outcome of a Request.
type Result struct {
	ID    uint32
	Gen   uint64
	Image image.Image
	Err   error
}

// Loader decodes icons on a bounded worker pool. Concurrent loads of the same
// source and size share one decode.
type Loader struct {
	logger   *slog.Logger
	resolver *Resolver
	workers  int

	jobs    chan Request
	results chan Result
	group   singleflight.Group

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
}

// NewLoader creates a loader with the given pool size.
func NewLoader(resolver *Resolver, workers int, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Loader{
		logger:   logger,
		resolver: resolver,
		workers:  workers,
		jobs:     make(chan Request, workers*8),
		results:  make(chan Result, workers*8),
	}
}

// Start launches the workers.
func (l *Loader) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < l.workers; i++ {
		eg.Go(func() error {
			l.work(ctx)
			return nil
		})
	}
	l.cancel = cancel
	l.eg = eg
	l.running = true
	l.logger.Debug("icon loader started", "workers", l.workers)
}

// Stop cancels the workers and waits for them.
func (l *Loader) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	cancel, eg := l.cancel, l.eg
	l.mu.Unlock()

	cancel()
	_ = eg.Wait()
	l.logger.Debug("icon loader stopped")
}

// Submit queues a request without blocking. It reports false when the queue
// is full or the loader is stopped.
func (l *Loader) Submit(req Request) bool {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return false
	}
	select {
	case l.jobs <- req:
		return true
	default:
		return false
	}
}

// Results delivers one Result per accepted request.
func (l *Loader) Results() <-chan Result {
	return l.results
}

func (l *Loader) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.jobs:
			img, err := l.Load(req)
			if err != nil {
				l.logger.Debug("icon load failed", "id", req.ID, "source", req.Source, "error", err)
			}
			select {
			case l.results <- Result{ID: req.ID, Gen: req.Gen, Image: img, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Load resolves, decodes and scales one icon synchronously.
func (l *Loader) Load(req Request) (image.Image, error) {
	if req.Data != nil {
		img, err := FromRaw(req.Data)
		if err != nil {
			return nil, err
		}
		return Fit(img, req.Size), nil
	}

	key := req.Source + "@" + strconv.Itoa(req.Size)
	v, err, _ := l.group.Do(key, func() (any, error) {
		return l.loadFile(req.Source, req.Size)
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

func (l *Loader) loadFile(source string, size int) (image.Image, error) {
	path, err := l.resolver.Resolve(source, size)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", source, err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat icon: %w", err)
	}
	if fi.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrUnsupported, path, fi.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon: %w", err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Fit(img, size), nil
}
