package daemon

import (
	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/surface"
)

// handleEvent applies one compositor event. Pointer coordinates arrive
// relative to the target and are translated into output space for hit
// testing.
func (d *Dispatcher) handleEvent(ev surface.Event) {
	switch ev.Kind {
	case surface.EventConfigure:
		if err := d.surfaces.HandleConfigure(ev.Target, ev.Width, ev.Height); err != nil {
			d.logger.Warn("failed to apply configure", "width", ev.Width, "height", ev.Height, "error", err)
		}
	case surface.EventClosed:
		if d.surfaces.HandleClosed(ev.Target) {
			d.relayout = true
		}
	case surface.EventOutput:
		if d.surfaces.HandleOutput(ev.Output) {
			d.relayout = true
		}
	case surface.EventMotion:
		var id uint32
		if hit, ok := d.hitTest(ev); ok {
			id = hit.ID
		}
		d.setHovered(id)
	case surface.EventLeave:
		d.setHovered(0)
	case surface.EventButton:
		d.handleButton(ev)
	case surface.EventKey:
		d.handleKey(ev)
	}
}

// hitTest resolves a pointer event to a notification. Counter hits are
// ignored.
func (d *Dispatcher) hitTest(ev surface.Event) (layout.Hit, bool) {
	hit, ok := d.frame.HitTest(ev.X+float64(d.frame.Bounds.X), ev.Y+float64(d.frame.Bounds.Y))
	if !ok || hit.Counter {
		return layout.Hit{}, false
	}
	return hit, true
}

func (d *Dispatcher) setHovered(id uint32) {
	if d.hovered == id {
		return
	}
	d.hovered = id
	d.relayout = true
}

func (d *Dispatcher) handleButton(ev surface.Event) {
	hit, ok := d.hitTest(ev)
	if !ok {
		return
	}
	if hit.Dismiss && ev.Button == surface.ButtonLeft {
		d.closeNotification(hit.ID, model.ReasonUser)
		return
	}
	if hit.Href != "" && ev.Button == surface.ButtonLeft {
		d.openLink(hit.ID, hit.Href)
		return
	}
	if hit.Action != "" && ev.Button == surface.ButtonLeft {
		if err := d.invokeAction(hit.ID, hit.Action); err != nil {
			d.logger.Debug("action click ignored", "id", hit.ID, "key", hit.Action, "error", err)
		}
		return
	}

	var action string
	switch ev.Button {
	case surface.ButtonLeft:
		action = d.cfg.Mouse.Left
	case surface.ButtonMiddle:
		action = d.cfg.Mouse.Middle
	case surface.ButtonRight:
		action = d.cfg.Mouse.Right
	}
	switch config.MouseAction(action) {
	case config.MouseActionDismiss:
		d.closeNotification(hit.ID, model.ReasonUser)
	case config.MouseActionDoAction:
		d.invokeDefault(hit.ID)
	case config.MouseActionCloseAll:
		d.closeAll(model.ReasonUser)
	}
}

func (d *Dispatcher) openLink(id uint32, href string) {
	if d.opener == nil {
		d.logger.Debug("no link opener, ignoring click", "id", id, "href", href)
		return
	}
	d.logger.Debug("opening link", "id", id, "href", href)
	d.opener.Open(href)
}

func (d *Dispatcher) invokeDefault(id uint32) {
	n, ok := d.store.Get(id)
	if !ok {
		return
	}
	key, ok := n.DefaultAction()
	if !ok {
		return
	}
	if err := d.invokeAction(id, key); err != nil {
		d.logger.Debug("default action failed", "id", id, "error", err)
	}
}

func (d *Dispatcher) handleKey(ev surface.Event) {
	ids := d.frame.IDs()
	switch d.cfg.Keyboard.Command(ev.Key, ev.Shift, ev.Ctrl, ev.Alt) {
	case config.KeyNext:
		d.moveSelection(ids, 1)
	case config.KeyPrev:
		if d.selected != 0 {
			d.moveSelection(ids, -1)
		}
	case config.KeyDismiss:
		target := d.selected
		if target == 0 && len(ids) > 0 {
			target = ids[0]
		}
		if target != 0 {
			d.closeNotification(target, model.ReasonUser)
		}
	case config.KeyInvoke:
		if d.selected != 0 {
			d.invokeDefault(d.selected)
		}
	case config.KeyDismissAll:
		d.closeAll(model.ReasonUser)
	}
}

// moveSelection steps the keyboard selection through the visible entries,
// wrapping at either end. With nothing selected it starts at the first.
func (d *Dispatcher) moveSelection(ids []uint32, delta int) {
	if len(ids) == 0 {
		return
	}
	next := ids[0]
	for i, id := range ids {
		if id == d.selected {
			next = ids[(i+delta+len(ids))%len(ids)]
			break
		}
	}
	if next != d.selected {
		d.selected = next
		d.relayout = true
	}
}
