package display

import (
	"log/slog"
	"sync"
	"unsafe"

	"github.com/diamondburned/gotk4/pkg/core/glib"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	glibv2 "github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"

	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/surface"
)

// namespace identifies glint surfaces to the compositor.
const namespace = "glint-notification"

// Compositor implements surface.Compositor on top of GTK4 and the
// wlr-layer-shell protocol.
type Compositor struct {
	app    *gtk.Application
	events *surface.EventQueue
	logger *slog.Logger

	// display and output are only used on the GTK thread.
	display   *gdk.Display
	preferred string

	mu      sync.Mutex
	started bool
	current *Target
}

// New creates a compositor for app. Events are posted to events.
func New(app *gtk.Application, events *surface.EventQueue, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		app:    app,
		events: events,
		logger: logger,
	}
}

// Start binds the default display and reports the preferred output. It
// must run on the GTK thread, normally from the application's activate
// handler.
func (c *Compositor) Start(preferred string) error {
	c.display = gdk.DisplayGetDefault()
	if c.display == nil {
		return &DisplayError{Message: "no display available"}
	}
	c.preferred = preferred

	if monitors := c.display.Monitors(); monitors != nil {
		monitors.ConnectItemsChanged(func(position, removed, added uint) {
			c.logger.Info("monitor configuration changed", "count", monitors.NItems())
			c.postOutput()
		})
	}
	c.postOutput()

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.logger.Info("display started")
	return nil
}

// SetPreferredOutput changes the monitor connector surfaces are placed on.
// Safe to call from any goroutine.
func (c *Compositor) SetPreferredOutput(name string) {
	glibv2.IdleAdd(func() {
		if c.preferred == name {
			return
		}
		c.preferred = name
		c.postOutput()
	})
}

// CreateTarget creates a layer-shell window for req. The window is built on
// the GTK thread; a configure event follows once it is mapped.
func (c *Compositor) CreateTarget(req surface.Request) (surface.Target, error) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil, &DisplayError{Message: "display not started"}
	}
	t := &Target{c: c, req: req, width: req.Width, height: req.Height}
	c.current = t
	c.mu.Unlock()

	c.SetPreferredOutput(req.Output)
	glibv2.IdleAdd(t.build)
	return t, nil
}

// Stop destroys the live target.
func (c *Compositor) Stop() {
	c.mu.Lock()
	t := c.current
	c.current = nil
	c.started = false
	c.mu.Unlock()

	if t != nil {
		t.Destroy()
	}
}

// postOutput reports the geometry of the monitor surfaces go to.
func (c *Compositor) postOutput() {
	mon := c.monitor(c.preferred)
	if mon == nil {
		c.logger.Warn("no monitors available")
		return
	}
	out := outputFor(mon)
	c.logger.Debug("output selected", "name", out.Name, "width", out.Width, "height", out.Height, "scale", out.Scale)
	c.events.Post(surface.Event{Kind: surface.EventOutput, Output: out})
}

// monitor returns the monitor with the given connector, falling back to
// the first one.
func (c *Compositor) monitor(connector string) *gdk.Monitor {
	if c.display == nil {
		return nil
	}
	monitors := c.display.Monitors()
	if monitors == nil || monitors.NItems() == 0 {
		return nil
	}

	var first *gdk.Monitor
	for i := range monitors.NItems() {
		mon := wrapMonitor(monitors.Item(i))
		if mon == nil {
			continue
		}
		if first == nil {
			first = mon
		}
		if connector != "" && mon.Connector() == connector {
			return mon
		}
	}
	if connector != "" {
		c.logger.Warn("configured output not available, using first monitor", "output", connector)
	}
	return first
}

func outputFor(mon *gdk.Monitor) layout.Output {
	geom := mon.Geometry()
	scale := float64(mon.ScaleFactor())
	if scale <= 0 {
		scale = 1
	}
	return layout.Output{
		Name:   mon.Connector(),
		Width:  geom.Width(),
		Height: geom.Height(),
		Scale:  scale,
	}
}

// wrapMonitor wraps a list model item as a gdk.Monitor. gotk4 does not
// export its own wrapper; gdk.Monitor is a single embedded *glib.Object.
func wrapMonitor(obj *glib.Object) *gdk.Monitor {
	if obj == nil {
		return nil
	}
	type monitor struct {
		_ [0]func()
		*glib.Object
	}
	m := &monitor{Object: obj}
	return (*gdk.Monitor)(unsafe.Pointer(m))
}

// DisplayError represents a display-related error.
type DisplayError struct {
	Message string
	Cause   error
}

func (e *DisplayError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *DisplayError) Unwrap() error {
	return e.Cause
}
