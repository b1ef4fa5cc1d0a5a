// Package surface owns the compositor target that notifications are drawn
// into and keeps the render pipeline bound to it.
//
// A target moves through Unbound (no target, or a target awaiting its first
// configure) to Bound (configured geometry, pipeline bound) and back as
// content appears, changes size and disappears. Destroyed is terminal.
// Every geometry change gets a fresh device surface.
package surface

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/render"
)

// ErrDestroyed is returned once the manager has been closed.
var ErrDestroyed = errors.New("surface manager destroyed")

// Request describes the target the compositor should create.
type Request struct {
	Anchor  string
	Margins config.Margins
	Output  string
	Width   int
	Height  int
}

// Target is one compositor surface. Present must not retain the image.
type Target interface {
	render.Drawable
	// Resize asks the compositor for a new size. The new size applies once
	// it is acknowledged with a configure event.
	Resize(width, height int) error
	Destroy()
}

// Compositor creates targets. Configure, closed, output and input events
// are delivered asynchronously into the event loop.
type Compositor interface {
	CreateTarget(req Request) (Target, error)
}

// State is the lifecycle state of the managed target.
type State int

const (
	// StateUnbound has no configured target.
	StateUnbound State = iota
	// StateBound has a configured target and a bound pipeline.
	StateBound
	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateBound:
		return "bound"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unbound"
	}
}

// Manager drives the target lifecycle. It belongs to the event loop
// goroutine and is not safe for concurrent use.
type Manager struct {
	logger     *slog.Logger
	compositor Compositor
	pipeline   *render.Pipeline

	state  State
	target Target
	req    Request

	// width and height are the configured geometry while bound.
	width  int
	height int

	// replaced marks a target created to replace a lost one that has not
	// presented a frame yet.
	replaced bool

	output layout.Output
}

// NewManager creates an unbound manager.
func NewManager(compositor Compositor, pipeline *render.Pipeline, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:     logger,
		compositor: compositor,
		pipeline:   pipeline,
		output:     layout.DefaultOutput,
	}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// Ready reports whether a frame can be rendered now.
func (m *Manager) Ready() bool {
	return m.state == StateBound && m.pipeline.Bound()
}

// HasTarget reports whether a compositor target exists, configured or not.
func (m *Manager) HasTarget() bool {
	return m.target != nil
}

// Size returns the configured geometry.
func (m *Manager) Size() (int, int) {
	return m.width, m.height
}

// Output returns the last output geometry reported by the compositor.
func (m *Manager) Output() layout.Output {
	return m.output
}

// Sync reconciles the target with the frame bounds. Empty bounds release
// the target; new content creates one; a size or placement change resizes
// or recreates it.
func (m *Manager) Sync(bounds model.Rect, anchor string, margins config.Margins, output string) error {
	if m.state == StateDestroyed {
		return ErrDestroyed
	}

	if bounds.Empty() {
		if m.target != nil {
			m.logger.Debug("releasing surface target")
			m.release()
		}
		return nil
	}

	req := Request{
		Anchor:  anchor,
		Margins: margins,
		Output:  output,
		Width:   bounds.W,
		Height:  bounds.H,
	}

	if m.target != nil && (req.Anchor != m.req.Anchor || req.Margins != m.req.Margins || req.Output != m.req.Output) {
		m.logger.Debug("surface placement changed, recreating target", "anchor", anchor)
		m.release()
	}

	if m.target == nil {
		return m.create(req)
	}

	if req.Width == m.req.Width && req.Height == m.req.Height {
		return nil
	}

	if err := m.target.Resize(req.Width, req.Height); err != nil {
		if !errors.Is(err, render.ErrSurfaceLost) {
			return fmt.Errorf("failed to resize surface target: %w", err)
		}
		m.logger.Warn("surface target lost on resize, requesting a new one")
		m.release()
		if err := m.create(req); err != nil {
			return err
		}
		m.replaced = true
		return nil
	}
	m.req = req
	// The old device surface is for the old geometry; wait for the configure.
	m.pipeline.Unbind()
	m.state = StateUnbound
	m.logger.Debug("surface target resize requested", "width", req.Width, "height", req.Height)
	return nil
}

func (m *Manager) create(req Request) error {
	target, err := m.compositor.CreateTarget(req)
	if err != nil {
		return fmt.Errorf("failed to create surface target: %w", err)
	}
	m.target = target
	m.req = req
	m.logger.Debug("surface target created", "width", req.Width, "height", req.Height, "anchor", req.Anchor)
	return nil
}

// HandleConfigure binds the pipeline to the acknowledged geometry. Events
// for targets other than the current one are ignored.
func (m *Manager) HandleConfigure(target Target, width, height int) error {
	if m.state == StateDestroyed || target == nil || target != m.target {
		return nil
	}
	if width <= 0 || height <= 0 {
		width, height = m.req.Width, m.req.Height
	}
	if err := m.pipeline.Bind(target, width, height); err != nil {
		m.state = StateUnbound
		return fmt.Errorf("failed to bind configured surface: %w", err)
	}
	m.width, m.height = width, height
	m.state = StateBound
	m.logger.Debug("surface configured", "width", width, "height", height)
	return nil
}

// HandleClosed drops a target the compositor destroyed. It reports whether
// the current target was affected; the caller must cancel any queued frame
// and re-sync to get a new target.
func (m *Manager) HandleClosed(target Target) bool {
	if target == nil || target != m.target {
		return false
	}
	m.logger.Info("surface target closed by compositor")
	m.pipeline.Unbind()
	m.target = nil
	m.req = Request{}
	m.width, m.height = 0, 0
	m.replaced = false
	if m.state != StateDestroyed {
		m.state = StateUnbound
	}
	return true
}

// HandleOutput records output geometry. It reports whether it changed.
func (m *Manager) HandleOutput(out layout.Output) bool {
	if out.Width <= 0 || out.Height <= 0 {
		return false
	}
	if out.Scale <= 0 {
		out.Scale = 1
	}
	if out == m.output {
		return false
	}
	m.output = out
	m.logger.Debug("output geometry changed", "name", out.Name, "width", out.Width, "height", out.Height, "scale", out.Scale)
	return true
}

// Rebind creates a fresh device surface for the current target at the
// configured geometry.
func (m *Manager) Rebind() error {
	if m.state == StateDestroyed {
		return ErrDestroyed
	}
	if m.target == nil || m.width <= 0 || m.height <= 0 {
		return render.ErrSurfaceLost
	}
	if err := m.pipeline.Bind(m.target, m.width, m.height); err != nil {
		m.state = StateUnbound
		return fmt.Errorf("failed to rebind surface: %w", err)
	}
	m.state = StateBound
	m.logger.Debug("surface rebound", "width", m.width, "height", m.height)
	return nil
}

// Replace drops a target that can no longer present and asks the
// compositor for a new one with the same request. Rendering resumes once
// the new target is configured. A replacement that is lost before it
// presents anything cannot be replaced again and yields
// render.ErrSurfaceLost.
func (m *Manager) Replace() error {
	if m.state == StateDestroyed {
		return ErrDestroyed
	}
	if m.replaced {
		return fmt.Errorf("%w: replacement target lost before presenting", render.ErrSurfaceLost)
	}
	req := m.req
	if req.Width <= 0 || req.Height <= 0 {
		return render.ErrSurfaceLost
	}
	m.release()
	if err := m.create(req); err != nil {
		return err
	}
	m.replaced = true
	m.logger.Info("surface target replaced", "width", req.Width, "height", req.Height)
	return nil
}

// Presented records that the current target accepted a frame.
func (m *Manager) Presented() {
	m.replaced = false
}

// Close releases the target and moves to the terminal state.
func (m *Manager) Close() {
	if m.state == StateDestroyed {
		return
	}
	m.release()
	m.state = StateDestroyed
}

func (m *Manager) release() {
	m.pipeline.Unbind()
	if m.target != nil {
		m.target.Destroy()
	}
	m.target = nil
	m.req = Request{}
	m.width, m.height = 0, 0
	m.replaced = false
	m.state = StateUnbound
}
