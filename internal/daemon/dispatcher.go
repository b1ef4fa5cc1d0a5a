package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/icons"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/metrics"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/render"
	"github.com/jmylchreest/glint/internal/store"
	"github.com/jmylchreest/glint/internal/surface"
	"github.com/jmylchreest/glint/internal/timer"
)

// ErrStopped is returned by requests made after the loop exited.
var ErrStopped = errors.New("dispatcher stopped")

// maxDrain bounds how many queued items of one source are handled per wake.
const maxDrain = 64

// animationOwner owns the frame tick timer; notification ids are never 0.
const animationOwner = 0

// Emitter receives outbound signals. It is called on the loop goroutine and
// must not block.
type Emitter interface {
	NotificationClosed(id uint32, reason model.CloseReason)
	ActionInvoked(id uint32, key string)
	StateChanged(st model.Status)
}

// SoundPlayer plays the sound for a notification without blocking.
type SoundPlayer interface {
	Play(n model.Notification) bool
}

// Opener opens a link from a notification body without blocking.
type Opener interface {
	Open(uri string)
}

// IconLoader decodes icons off the loop.
type IconLoader interface {
	Submit(req icons.Request) bool
	Results() <-chan icons.Result
}

type nopEmitter struct{}

func (nopEmitter) NotificationClosed(uint32, model.CloseReason) {}
func (nopEmitter) ActionInvoked(uint32, string)                 {}
func (nopEmitter) StateChanged(model.Status)                    {}

// Options configures a Dispatcher. Compositor and Events are required.
type Options struct {
	Config     *config.Holder
	Compositor surface.Compositor
	Events     <-chan surface.Event
	// Device defaults to the software rasterizer.
	Device  render.Device
	Clock   timer.Clock
	Emitter Emitter
	Sounds  SoundPlayer
	Icons   IconLoader
	Opener  Opener
	History *history.Recorder
	Metrics *metrics.Metrics
	// StatePath persists inhibit and mute across restarts. Empty disables it.
	StatePath string
	Logger    *slog.Logger
}

type request struct {
	run   func() (any, error)
	reply chan response
}

type response struct {
	val any
	err error
}

type reload struct {
	cfg *config.DaemonConfig
	err error
}

// Dispatcher is the event loop. Every piece of mutable state below is owned
// by the goroutine running Run; other goroutines talk to it through
// requests.
type Dispatcher struct {
	logger *slog.Logger
	holder *config.Holder
	cfg    *config.DaemonConfig
	clock  timer.Clock

	store    *store.Store
	timers   *timer.Registry
	pipeline *render.Pipeline
	surfaces *surface.Manager
	measurer layout.Measurer
	events   <-chan surface.Event

	emitter   Emitter
	sounds    SoundPlayer
	icons     IconLoader
	opener    Opener
	history   *history.Recorder
	metrics   *metrics.Metrics
	notifier  *InternalNotifier
	statePath string
	state     history.State
	writer    *stateWriter

	requests chan request
	reloads  chan reload
	doneCh   chan struct{}

	frame     layout.Frame
	relayout  bool
	shown     map[uint32]bool
	hovered   uint32
	selected  uint32
	inhibited bool
	muted     bool
	idle      bool
}

// New creates a dispatcher. Nothing runs until Run.
func New(opts Options) (*Dispatcher, error) {
	if opts.Compositor == nil {
		return nil, errors.New("dispatcher requires a compositor")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	holder := opts.Config
	if holder == nil {
		holder = config.NewHolder("", nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timer.SystemClock()
	}
	device := opts.Device
	if device == nil {
		device = render.NewRasterDevice()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}
	cfg := holder.Get()

	face, err := layout.LoadFace(cfg.Layout)
	if err != nil {
		logger.Warn("failed to load font, using fallback", "font", cfg.Layout.Font, "error", err)
		face = layout.FallbackFace()
	}
	pipeline := render.NewPipeline(device, face, logger)

	d := &Dispatcher{
		logger:    logger,
		holder:    holder,
		cfg:       cfg,
		clock:     clock,
		store:     store.New(store.PolicyFromConfig(cfg), clock.Now),
		timers:    timer.NewRegistry(clock),
		pipeline:  pipeline,
		surfaces:  surface.NewManager(opts.Compositor, pipeline, logger),
		measurer:  layout.NewFaceMeasurer(face),
		events:    opts.Events,
		emitter:   emitter,
		sounds:    opts.Sounds,
		icons:     opts.Icons,
		opener:    opts.Opener,
		history:   opts.History,
		metrics:   opts.Metrics,
		notifier:  NewInternalNotifier(clock, logger),
		statePath: opts.StatePath,
		requests:  make(chan request, 16),
		reloads:   make(chan reload, 1),
		doneCh:    make(chan struct{}),
		shown:     make(map[uint32]bool),
		inhibited: cfg.DnD.Enabled,
	}
	d.notifier.SetNotifyHandler(func(spec store.Spec) uint32 {
		id, _ := d.notify(spec)
		return id
	})

	if d.statePath != "" {
		d.writer = newStateWriter(d.statePath, logger)
		d.state = *history.DefaultState()
		st, err := history.LoadState(d.statePath)
		if err != nil {
			logger.Warn("failed to load daemon state", "path", d.statePath, "error", err)
		} else {
			d.state = *st
			if st.LastInhibit != nil {
				d.inhibited = st.Inhibited
			}
			d.muted = st.Muted
		}
	}
	return d, nil
}

// Run processes events until ctx is cancelled. It returns an error wrapping
// render.ErrSurfaceFatal when the render surface cannot be recovered.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.doneCh)
	defer d.surfaces.Close()
	if d.writer != nil {
		go d.writer.run()
		defer d.writer.Close()
	}

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	var results <-chan icons.Result
	if d.icons != nil {
		results = d.icons.Results()
	}

	d.relayout = true
	d.logger.Info("dispatcher started", "inhibited", d.inhibited, "muted", d.muted)

	for {
		d.fireTimers()
		if err := d.step(); err != nil {
			return err
		}
		d.arm(wake)

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping", "live", d.store.Len())
			return nil
		case req := <-d.requests:
			d.handleRequest(req)
			d.drainRequests()
		case ev, ok := <-d.events:
			if !ok {
				d.events = nil
				continue
			}
			d.handleEvent(ev)
			d.drainEvents()
		case res := <-results:
			d.handleIcon(res)
			d.drainIcons(results)
		case r := <-d.reloads:
			d.applyReload(r)
		case <-wake.C:
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.doneCh
}

// PostConfig hands a reloaded snapshot to the loop. It is safe to call from
// any goroutine.
func (d *Dispatcher) PostConfig(cfg *config.DaemonConfig) {
	d.postReload(reload{cfg: cfg})
}

// PostConfigError reports a failed reload to the loop.
func (d *Dispatcher) PostConfigError(err error) {
	d.postReload(reload{err: err})
}

func (d *Dispatcher) postReload(r reload) {
	select {
	case d.reloads <- r:
	case <-d.doneCh:
	}
}

func (d *Dispatcher) fireTimers() {
	d.timers.Fire(d.clock.Now())
}

func (d *Dispatcher) arm(t *time.Timer) {
	next, ok := d.timers.NextDeadline()
	if !ok {
		t.Stop()
		return
	}
	t.Reset(max(next.Sub(d.clock.Now()), 0))
}

func (d *Dispatcher) handleRequest(req request) {
	// Timers that came due while the loop was asleep fire before the
	// request observes the store, and the request's own changes are laid
	// out (arming their timers) before the caller sees the reply.
	d.fireTimers()
	d.settle()
	v, err := req.run()
	d.settle()
	req.reply <- response{val: v, err: err}
}

func (d *Dispatcher) drainRequests() {
	for range maxDrain {
		select {
		case req := <-d.requests:
			d.handleRequest(req)
		default:
			return
		}
	}
}

func (d *Dispatcher) drainEvents() {
	for range maxDrain {
		select {
		case ev, ok := <-d.events:
			if !ok {
				d.events = nil
				return
			}
			d.handleEvent(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) drainIcons(results <-chan icons.Result) {
	for range maxDrain {
		select {
		case res := <-results:
			d.handleIcon(res)
		default:
			return
		}
	}
}

// step recomputes layout when needed, renders a pending frame and releases
// entries displaced by group merges once their replacement is on screen.
func (d *Dispatcher) step() error {
	d.settle()
	if d.surfaces.Ready() && d.pipeline.Dirty() {
		if err := d.render(); err != nil {
			return err
		}
	}
	if d.store.HasRetired() && (!d.pipeline.Dirty() || !d.surfaces.HasTarget()) {
		for _, ev := range d.store.FlushRetired() {
			d.finishClose(ev)
		}
	}
	return nil
}

// settle recomputes layout if the store or the view state changed.
func (d *Dispatcher) settle() {
	if d.store.TakeDirty() {
		d.relayout = true
	}
	if d.relayout {
		d.relayout = false
		d.recompute()
	}
}

func (d *Dispatcher) recompute() {
	f := layout.Compute(layout.Input{
		Notifications: d.store.Snapshot(),
		Output:        d.surfaces.Output(),
		Config:        d.cfg,
		Now:           d.clock.Now(),
		Measurer:      d.measurer,
		Hovered:       d.hovered,
		Selected:      d.selected,
		Inhibited:     d.inhibited,
	})

	visible := make(map[uint32]bool, len(f.Items))
	var firstShown []uint32
	for _, it := range f.Items {
		visible[it.ID] = true
		d.store.SetBounds(it.ID, it.Rect)
		phase := model.PhaseVisible
		if it.Animating {
			phase = model.PhaseAnimating
		}
		d.store.SetPhase(it.ID, phase)
		if !d.shown[it.ID] {
			d.shown[it.ID] = true
			firstShown = append(firstShown, it.ID)
		}
	}
	for _, id := range d.store.IDs() {
		if !visible[id] {
			d.store.SetBounds(id, model.Rect{})
			d.store.SetPhase(id, model.PhasePending)
		}
	}
	if d.selected != 0 && !visible[d.selected] {
		d.selected = 0
	}

	d.syncExpiry(&f, visible)
	// Phase bookkeeping is an output of this pass, not a new change.
	d.store.TakeDirty()

	for _, id := range firstShown {
		d.onFirstShown(id)
	}

	if !reflect.DeepEqual(f, d.frame) {
		d.pipeline.MarkDirty()
	}
	d.frame = f

	if err := d.surfaces.Sync(f.Bounds, d.cfg.General.Anchor, d.cfg.Layout.Margin, d.cfg.Layout.Output); err != nil {
		d.logger.Warn("failed to sync surface", "error", err)
	}

	if f.Animating && !d.timers.Pending(animationOwner, timer.KindAnimation) {
		tick := d.cfg.Animation.Tick.Duration()
		if tick <= 0 {
			tick = 16 * time.Millisecond
		}
		d.timers.Schedule(animationOwner, timer.KindAnimation, tick, func() { d.relayout = true })
	}

	d.metrics.SetCounts(d.store.Len(), len(f.Items), len(f.Hidden), f.Waiting)
}

// render presents the current frame. A lost surface is rebound and the frame
// retried once. If the retry is lost too the target itself is gone and a new
// one is requested; losing that replacement before it presents is fatal.
func (d *Dispatcher) render() error {
	submitted, err := d.pipeline.Render(&d.frame)
	if errors.Is(err, render.ErrSurfaceLost) {
		d.metrics.SurfaceLost()
		d.logger.Warn("render surface lost, rebinding")

		// A pending closed event explains the loss; handle it instead of
		// rebinding a dead target.
		d.drainEvents()
		if !d.surfaces.HasTarget() {
			return nil
		}
		if rerr := d.surfaces.Rebind(); rerr != nil {
			return fmt.Errorf("%w: %w", render.ErrSurfaceFatal, rerr)
		}
		submitted, err = d.pipeline.Render(&d.frame)
		if errors.Is(err, render.ErrSurfaceLost) {
			d.metrics.SurfaceLost()
			if rerr := d.surfaces.Replace(); rerr != nil {
				return fmt.Errorf("%w: %w", render.ErrSurfaceFatal, rerr)
			}
			// The frame stays pending until the new target is configured.
			d.pipeline.MarkDirty()
			return nil
		}
	}
	if err != nil {
		d.logger.Error("failed to render frame", "error", err)
		return nil
	}
	if submitted {
		d.surfaces.Presented()
		d.metrics.FrameSubmitted()
	} else {
		d.metrics.FrameSkipped()
	}
	return nil
}

func (d *Dispatcher) applyReload(r reload) {
	if r.err != nil {
		d.logger.Warn("configuration reload failed, keeping previous", "error", r.err)
		d.notifier.NotifyConfigError(r.err)
		return
	}
	d.applyConfig(r.cfg)
	d.notifier.NotifyConfigReloaded()
}

func (d *Dispatcher) applyConfig(cfg *config.DaemonConfig) {
	old := d.cfg
	d.cfg = cfg
	d.holder.Store(cfg)
	d.store.SetPolicy(store.PolicyFromConfig(cfg))

	if cfg.Layout.Font != old.Layout.Font || cfg.Layout.FontSize != old.Layout.FontSize {
		face, err := layout.LoadFace(cfg.Layout)
		if err != nil {
			d.logger.Warn("failed to load font, keeping previous", "font", cfg.Layout.Font, "error", err)
		} else {
			d.measurer = layout.NewFaceMeasurer(face)
			d.pipeline.SetFace(face)
		}
	}
	if c, ok := d.sounds.(configurable); ok {
		c.UpdateConfig(cfg)
	}
	if cfg.DnD.Enabled != old.DnD.Enabled && d.statePath == "" {
		d.setInhibited(cfg.DnD.Enabled, "config")
	}
	d.relayout = true
	d.pipeline.MarkDirty()
	d.logger.Info("configuration applied")
}
