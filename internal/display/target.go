package display

import (
	"image"
	"sync"

	layershell "github.com/diamondburned/gotk4-layer-shell/pkg/gtk4layershell"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	glibv2 "github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/render"
	"github.com/jmylchreest/glint/internal/surface"
)

// Target is one layer-shell window showing rendered frames.
type Target struct {
	c   *Compositor
	req surface.Request

	mu        sync.Mutex
	width     int
	height    int
	frame     []byte // latest frame waiting for the GTK thread
	stride    int
	scheduled bool
	destroyed bool

	// GTK thread only.
	window  *gtk.Window
	picture *gtk.Picture
}

// build creates and maps the window. Runs on the GTK thread.
func (t *Target) build() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	width, height := t.width, t.height
	t.mu.Unlock()

	t.window = gtk.NewWindow()
	t.window.SetApplication(t.c.app)
	t.window.SetDecorated(false)
	t.window.SetResizable(false)
	t.window.SetDefaultSize(width, height)
	t.window.AddCSSClass("glint")

	layershell.InitForWindow(t.window)
	layershell.SetLayer(t.window, layershell.LayerShellLayerOverlay)
	layershell.SetExclusiveZone(t.window, 0)
	layershell.SetKeyboardMode(t.window, layershell.LayerShellKeyboardModeOnDemand)
	layershell.SetNamespace(t.window, namespace)
	if mon := t.c.monitor(t.req.Output); mon != nil {
		layershell.SetMonitor(t.window, mon)
	}
	applyAnchor(t.window, config.Position(t.req.Anchor), t.req.Margins)

	t.picture = gtk.NewPicture()
	t.picture.SetCanShrink(false)
	t.picture.SetSizeRequest(width, height)
	t.window.SetChild(t.picture)

	t.connectControllers()
	t.window.ConnectCloseRequest(func() bool {
		t.lost()
		return false
	})

	t.window.Present()
	t.c.events.Post(surface.Event{Kind: surface.EventConfigure, Target: t, Width: width, Height: height})
}

func (t *Target) connectControllers() {
	motion := gtk.NewEventControllerMotion()
	motion.ConnectMotion(func(x, y float64) {
		t.c.events.Post(surface.Event{Kind: surface.EventMotion, Target: t, X: x, Y: y})
	})
	motion.ConnectLeave(func() {
		t.c.events.Post(surface.Event{Kind: surface.EventLeave, Target: t})
	})
	t.window.AddController(motion)

	click := gtk.NewGestureClick()
	click.SetButton(0) // All buttons
	click.ConnectReleased(func(nPress int, x, y float64) {
		t.c.events.Post(surface.Event{
			Kind:   surface.EventButton,
			Target: t,
			X:      x,
			Y:      y,
			Button: click.CurrentButton(),
		})
	})
	t.window.AddController(click)

	keys := gtk.NewEventControllerKey()
	keys.ConnectKeyPressed(func(keyval, keycode uint, state gdk.ModifierType) bool {
		name := gdk.KeyvalName(keyval)
		if name == "" {
			return false
		}
		t.c.events.Post(surface.Event{
			Kind:   surface.EventKey,
			Target: t,
			Key:    name,
			Shift:  state&gdk.ShiftMask != 0,
			Ctrl:   state&gdk.ControlMask != 0,
			Alt:    state&gdk.AltMask != 0,
		})
		return true
	})
	t.window.AddController(keys)
}

// Present copies img and hands it to the GTK thread. Frames presented
// before the previous one was shown replace it.
func (t *Target) Present(img *image.RGBA) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.destroyed {
		return render.ErrSurfaceLost
	}

	b := img.Bounds()
	if len(t.frame) != len(img.Pix) {
		t.frame = make([]byte, len(img.Pix))
	}
	copy(t.frame, img.Pix)
	t.stride = img.Stride
	t.width, t.height = b.Dx(), b.Dy()

	if !t.scheduled {
		t.scheduled = true
		glibv2.IdleAdd(t.show)
	}
	return nil
}

// show uploads the pending frame. Runs on the GTK thread.
func (t *Target) show() {
	t.mu.Lock()
	t.scheduled = false
	if t.destroyed || t.picture == nil || t.frame == nil {
		t.mu.Unlock()
		return
	}
	data := make([]byte, len(t.frame))
	copy(data, t.frame)
	width, height, stride := t.width, t.height, t.stride
	t.mu.Unlock()

	texture := gdk.NewMemoryTexture(width, height, gdk.MemoryR8G8B8A8Premultiplied,
		glibv2.NewBytes(data), uint(stride))
	t.picture.SetPaintable(texture)
}

// Resize requests a new window size and acknowledges it once applied.
func (t *Target) Resize(width, height int) error {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return render.ErrSurfaceLost
	}
	t.width, t.height = width, height
	t.mu.Unlock()

	glibv2.IdleAdd(func() {
		if t.window == nil || t.isDestroyed() {
			return
		}
		t.picture.SetSizeRequest(width, height)
		t.window.SetDefaultSize(width, height)
		t.c.events.Post(surface.Event{Kind: surface.EventConfigure, Target: t, Width: width, Height: height})
	})
	return nil
}

// Destroy unmaps and destroys the window.
func (t *Target) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.mu.Unlock()

	glibv2.IdleAdd(func() {
		if t.window != nil {
			t.window.Destroy()
			t.window = nil
			t.picture = nil
		}
	})
}

// lost marks the target gone after the compositor closed it.
func (t *Target) lost() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	t.mu.Unlock()

	t.c.logger.Warn("surface closed by compositor")
	t.c.events.Post(surface.Event{Kind: surface.EventClosed, Target: t})
}

func (t *Target) isDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// applyAnchor sets the layer-shell anchors and margins for pos.
func applyAnchor(window *gtk.Window, pos config.Position, m config.Margins) {
	top, bottom, left, right := anchorEdges(pos)
	layershell.SetAnchor(window, layershell.LayerShellEdgeTop, top)
	layershell.SetAnchor(window, layershell.LayerShellEdgeBottom, bottom)
	layershell.SetAnchor(window, layershell.LayerShellEdgeLeft, left)
	layershell.SetAnchor(window, layershell.LayerShellEdgeRight, right)

	layershell.SetMargin(window, layershell.LayerShellEdgeTop, m.Top)
	layershell.SetMargin(window, layershell.LayerShellEdgeBottom, m.Bottom)
	layershell.SetMargin(window, layershell.LayerShellEdgeLeft, m.Left)
	layershell.SetMargin(window, layershell.LayerShellEdgeRight, m.Right)
}

// anchorEdges returns which output edges a position is pinned to. Centered
// axes are pinned to neither edge.
func anchorEdges(pos config.Position) (top, bottom, left, right bool) {
	switch pos {
	case config.PositionTopLeft:
		return true, false, true, false
	case config.PositionTopCenter:
		return true, false, false, false
	case config.PositionBottomLeft:
		return false, true, true, false
	case config.PositionBottomRight:
		return false, true, false, true
	case config.PositionBottomCenter:
		return false, true, false, false
	case config.PositionCenter:
		return false, false, false, false
	default:
		return true, false, false, true
	}
}
