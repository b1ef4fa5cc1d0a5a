package daemon

import (
	"errors"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/icons"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/store"
	"github.com/jmylchreest/glint/internal/timer"
)

type configurable interface {
	UpdateConfig(cfg *config.DaemonConfig)
}

// notify inserts or updates a notification and returns the id reported to
// the sender.
func (d *Dispatcher) notify(spec store.Spec) (uint32, error) {
	d.metrics.Received()

	res, err := d.store.Upsert(spec)
	if errors.Is(err, store.ErrMalformed) {
		d.logger.Warn("dropping malformed notification", "id", res.ID, "app", spec.AppName)
		if res.Outcome == store.OutcomeReplaced {
			d.closeNotification(res.ID, model.ReasonUndefined)
		} else {
			d.metrics.Closed(model.ReasonUndefined.String())
			d.emitter.NotificationClosed(res.ID, model.CloseReasonUndefined)
		}
		return res.ID, nil
	}
	if err != nil {
		return 0, err
	}

	switch res.Outcome {
	case store.OutcomeReplaced:
		d.restartExpiry(res.Target)
		d.requestIcon(res.Target)
	case store.OutcomeStacked:
		d.restartExpiry(res.Target)
		// The folded request never becomes a live entry.
		d.metrics.Closed(model.ReasonUser.String())
		d.emitter.NotificationClosed(res.ID, model.CloseReasonDismissed)
	case store.OutcomeMerged:
		d.timers.CancelOwner(res.Displaced)
		d.requestIcon(res.Target)
	default:
		d.requestIcon(res.Target)
	}

	d.logger.Debug("notification received",
		"id", res.ID,
		"outcome", res.Outcome.String(),
		"app", spec.AppName,
		"summary", spec.Summary,
	)
	return res.ID, nil
}

// closeNotification removes a live entry and emits its closed signal. It
// reports whether id was live.
func (d *Dispatcher) closeNotification(id uint32, reason model.DismissReason) bool {
	ev, ok := d.store.Remove(id, reason)
	if !ok {
		return false
	}
	d.finishClose(ev)
	return true
}

func (d *Dispatcher) closeAll(reason model.DismissReason) int {
	events := d.store.RemoveAll(reason)
	for _, ev := range events {
		d.finishClose(ev)
	}
	return len(events)
}

// finishClose runs the side effects of one removal. Each removed entry
// passes through here exactly once.
func (d *Dispatcher) finishClose(ev model.ClosedEvent) {
	d.timers.CancelOwner(ev.ID)
	delete(d.shown, ev.ID)
	if d.hovered == ev.ID {
		d.hovered = 0
	}
	if d.selected == ev.ID {
		d.selected = d.neighbour(ev.ID)
	}
	if d.history != nil {
		d.history.Record(ev)
	}
	d.metrics.Closed(ev.Reason.String())
	d.emitter.NotificationClosed(ev.ID, ev.Reason.CloseReason())
	d.logger.Debug("notification closed", "id", ev.ID, "reason", ev.Reason.String())
}

// neighbour returns the visible entry after id, or before it when id was
// last, skipping entries that are no longer live.
func (d *Dispatcher) neighbour(id uint32) uint32 {
	ids := d.frame.IDs()
	idx := -1
	for i, v := range ids {
		if v == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}
	for i := idx + 1; i < len(ids); i++ {
		if d.store.Has(ids[i]) {
			return ids[i]
		}
	}
	for i := idx - 1; i >= 0; i-- {
		if d.store.Has(ids[i]) {
			return ids[i]
		}
	}
	return 0
}

// syncExpiry runs or pauses expiry timers to match the frame: only visible
// entries run, fifo runs only the first, and hovered or selected entries
// are paused. An idle session pauses everything.
func (d *Dispatcher) syncExpiry(f *layout.Frame, visible map[uint32]bool) {
	fifo := d.cfg.General.Queue == config.QueueFIFO
	idle := d.idle && d.cfg.Behavior.PauseOnIdle
	for i, it := range f.Items {
		run := !(fifo && i > 0) && !idle
		if it.ID == d.selected {
			run = false
		}
		if it.ID == d.hovered && d.cfg.Behavior.PauseOnHover {
			run = false
		}
		if run {
			d.resumeExpiry(it.ID)
		} else {
			d.pauseExpiry(it.ID)
		}
	}
	for _, id := range d.store.IDs() {
		if !visible[id] {
			d.pauseExpiry(id)
		}
	}
}

func (d *Dispatcher) resumeExpiry(id uint32) {
	if d.timers.Pending(id, timer.KindExpiry) {
		return
	}
	n, ok := d.store.Get(id)
	if !ok {
		return
	}
	dur := n.Remaining
	if dur <= 0 {
		dur = n.Timeout.Resolve(d.cfg.TimeoutForUrgency(n.Urgency))
	}
	if dur <= 0 {
		return
	}
	d.store.SetRemaining(id, 0)
	d.timers.Schedule(id, timer.KindExpiry, dur, func() {
		d.closeNotification(id, model.ReasonTimeout)
	})
}

func (d *Dispatcher) pauseExpiry(id uint32) {
	deadline, ok := d.timers.Deadline(id, timer.KindExpiry)
	if !ok {
		return
	}
	rem := deadline.Sub(d.clock.Now())
	if rem <= 0 {
		// Already due; let it fire.
		return
	}
	d.timers.CancelOwner(id)
	d.store.SetRemaining(id, rem)
}

// restartExpiry discards any running or paused expiry so the next layout
// pass starts a full timeout.
func (d *Dispatcher) restartExpiry(id uint32) {
	d.timers.CancelOwner(id)
	d.store.SetRemaining(id, 0)
}

func (d *Dispatcher) onFirstShown(id uint32) {
	n, ok := d.store.Get(id)
	if !ok {
		return
	}
	if d.sounds != nil && !d.muted {
		d.sounds.Play(n)
	}
}

func (d *Dispatcher) requestIcon(id uint32) {
	if d.icons == nil {
		return
	}
	n, ok := d.store.Get(id)
	if !ok || n.IconImage != nil || n.IconGen == 0 {
		return
	}
	req := icons.Request{
		ID:     id,
		Gen:    n.IconGen,
		Source: n.IconSource(),
		Data:   n.Hints.ImageData,
		Size:   d.cfg.Layout.IconSize,
	}
	if !d.icons.Submit(req) {
		d.logger.Debug("icon queue full, showing without icon", "id", id)
	}
}

// handleIcon attaches a decoded icon when it is still for the current
// generation. Failures leave the notification without an icon.
func (d *Dispatcher) handleIcon(res icons.Result) {
	d.metrics.IconLoaded(res.Err)
	if res.Err != nil || res.Image == nil {
		return
	}
	n, ok := d.store.Get(res.ID)
	if !ok || n.IconGen != res.Gen {
		return
	}
	d.store.Mutate(res.ID, func(n *model.Notification) {
		n.IconImage = res.Image
	})
}

func (d *Dispatcher) invokeAction(id uint32, key string) error {
	res, err := d.store.InvokeAction(id, key)
	if err != nil {
		return err
	}
	d.emitter.ActionInvoked(id, key)
	d.logger.Debug("action invoked", "id", id, "key", key, "close", res.Close)
	if res.Close {
		d.closeNotification(id, model.ReasonAction)
	}
	return nil
}

func (d *Dispatcher) status() model.Status {
	return model.Status{
		Active:    d.store.Len(),
		Visible:   len(d.frame.Items),
		Hidden:    len(d.frame.Hidden),
		Waiting:   d.frame.Waiting,
		Inhibited: d.inhibited,
		Muted:     d.muted,
		Idle:      d.idle,
		Surface:   d.surfaces.State().String(),
		Frames:    d.pipeline.Stats().Submitted,
	}
}

func (d *Dispatcher) list() []model.ListEntry {
	snap := d.store.Snapshot()
	out := make([]model.ListEntry, 0, len(snap))
	for _, n := range snap {
		_, visible := d.frame.Item(n.ID)
		e := model.ListEntry{
			ID:         n.ID,
			AppName:    n.AppName,
			Summary:    n.Summary,
			Body:       n.Body,
			Urgency:    n.Urgency.String(),
			Phase:      n.Phase.String(),
			Visible:    visible,
			Selected:   n.ID == d.selected,
			StackCount: n.StackCount,
			Actions:    n.Actions,
			Progress:   n.Hints.Progress,
			CreatedAt:  n.CreatedAt,
		}
		if deadline, ok := d.timers.Deadline(n.ID, timer.KindExpiry); ok {
			e.ExpiresAt = &deadline
		}
		out = append(out, e)
	}
	return out
}

func (d *Dispatcher) setInhibited(on bool, source string) bool {
	if d.inhibited == on {
		return false
	}
	d.inhibited = on
	d.relayout = true
	d.persistState(func(st *history.State) { st.SetInhibited(on, source) })
	d.logger.Info("inhibit changed", "inhibited", on, "source", source)
	return true
}

func (d *Dispatcher) setMuted(on bool, source string) bool {
	if d.muted == on {
		return false
	}
	d.muted = on
	d.persistState(func(st *history.State) { st.SetMuted(on, source) })
	d.logger.Info("mute changed", "muted", on, "source", source)
	return true
}
