// Package headless is an in-memory compositor. It acknowledges every size
// request immediately, keeps the last presented frame, and lets callers
// inject output changes, input and surface loss. glintd uses it with
// --headless; tests use it to drive the event loop.
package headless

import (
	"errors"
	"image"
	"sync"

	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/render"
	"github.com/jmylchreest/glint/internal/surface"
)

// ErrRejected is returned by CreateTarget while creation is disabled.
var ErrRejected = errors.New("headless compositor rejected target")

// Compositor implements surface.Compositor in memory.
type Compositor struct {
	mu      sync.Mutex
	events  *surface.EventQueue
	output  layout.Output
	current *Target
	created int
	reject  bool
	loseNew int
}

// New creates a compositor that posts its events to events.
func New(events *surface.EventQueue, output layout.Output) *Compositor {
	if output.Width <= 0 || output.Height <= 0 {
		output = layout.DefaultOutput
	}
	if output.Scale <= 0 {
		output.Scale = 1
	}
	if output.Name == "" {
		output.Name = "HEADLESS-1"
	}
	c := &Compositor{events: events, output: output}
	events.Post(surface.Event{Kind: surface.EventOutput, Output: output})
	return c
}

// CreateTarget creates a target and acknowledges its size.
func (c *Compositor) CreateTarget(req surface.Request) (surface.Target, error) {
	c.mu.Lock()
	if c.reject {
		c.mu.Unlock()
		return nil, ErrRejected
	}
	t := &Target{c: c, req: req, width: req.Width, height: req.Height, lose: c.loseNew}
	c.current = t
	c.created++
	c.mu.Unlock()

	c.events.Post(surface.Event{Kind: surface.EventConfigure, Target: t, Width: req.Width, Height: req.Height})
	return t, nil
}

// SetReject makes CreateTarget fail while enabled.
func (c *Compositor) SetReject(reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject = reject
}

// LoseNewTargets makes the first n presents of every target created from
// now on fail with render.ErrSurfaceLost.
func (c *Compositor) LoseNewTargets(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loseNew = n
}

// Current returns the live target, or nil.
func (c *Compositor) Current() *Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Destroyed() {
		return nil
	}
	return c.current
}

// Created returns how many targets were created.
func (c *Compositor) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// SetOutput changes the output geometry.
func (c *Compositor) SetOutput(out layout.Output) {
	c.mu.Lock()
	c.output = out
	c.mu.Unlock()
	c.events.Post(surface.Event{Kind: surface.EventOutput, Output: out})
}

// Output returns the output geometry.
func (c *Compositor) Output() layout.Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.output
}

// CloseCurrent destroys the live target as if its output went away.
func (c *Compositor) CloseCurrent() bool {
	t := c.Current()
	if t == nil {
		return false
	}
	t.Destroy()
	c.events.Post(surface.Event{Kind: surface.EventClosed, Target: t})
	return true
}

// Move reports the pointer at target-local coordinates.
func (c *Compositor) Move(x, y float64) {
	if t := c.Current(); t != nil {
		c.events.Post(surface.Event{Kind: surface.EventMotion, Target: t, X: x, Y: y})
	}
}

// Leave reports that the pointer left the target.
func (c *Compositor) Leave() {
	if t := c.Current(); t != nil {
		c.events.Post(surface.Event{Kind: surface.EventLeave, Target: t})
	}
}

// Click reports a button release at target-local coordinates.
func (c *Compositor) Click(x, y float64, button uint) {
	if t := c.Current(); t != nil {
		c.events.Post(surface.Event{Kind: surface.EventButton, Target: t, X: x, Y: y, Button: button})
	}
}

// Key reports a key press.
func (c *Compositor) Key(key string, shift, ctrl, alt bool) {
	if t := c.Current(); t != nil {
		c.events.Post(surface.Event{Kind: surface.EventKey, Target: t, Key: key, Shift: shift, Ctrl: ctrl, Alt: alt})
	}
}

// Target is an in-memory surface.
type Target struct {
	c   *Compositor
	req surface.Request

	mu        sync.Mutex
	width     int
	height    int
	frames    int
	last      *image.RGBA
	lose      int
	destroyed bool
}

// Present stores a copy of the frame.
func (t *Target) Present(img *image.RGBA) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return render.ErrSurfaceLost
	}
	if t.lose > 0 {
		t.lose--
		return render.ErrSurfaceLost
	}

	cp := image.NewRGBA(img.Bounds())
	copy(cp.Pix, img.Pix)
	t.last = cp
	t.frames++
	return nil
}

// Resize changes the size and acknowledges it.
func (t *Target) Resize(width, height int) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return render.ErrSurfaceLost
	}
	t.width, t.height = width, height
	t.mu.Unlock()

	t.c.events.Post(surface.Event{Kind: surface.EventConfigure, Target: t, Width: width, Height: height})
	return nil
}

// Destroy marks the target gone. Later presents fail.
func (t *Target) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = true
}

// Destroyed reports whether the target was destroyed.
func (t *Target) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// Request returns the creation request.
func (t *Target) Request() surface.Request {
	return t.req
}

// Size returns the current size.
func (t *Target) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// Frames returns how many frames were presented.
func (t *Target) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// LastFrame returns a copy of the last presented frame.
func (t *Target) LastFrame() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	cp := image.NewRGBA(t.last.Bounds())
	copy(cp.Pix, t.last.Pix)
	return cp
}

// LoseSurface makes the next n presents fail with render.ErrSurfaceLost.
func (t *Target) LoseSurface(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lose = n
}
