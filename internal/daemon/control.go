package daemon

import (
	"context"
	"fmt"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/store"
)

// call runs fn on the loop goroutine and waits for its result.
func call[T any](ctx context.Context, d *Dispatcher, fn func() (T, error)) (T, error) {
	var zero T
	req := request{
		run: func() (any, error) {
			return fn()
		},
		reply: make(chan response, 1),
	}

	select {
	case d.requests <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-d.doneCh:
		return zero, ErrStopped
	}

	select {
	case resp := <-req.reply:
		v, _ := resp.val.(T)
		return v, resp.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-d.doneCh:
		// The loop may have answered just before exiting.
		select {
		case resp := <-req.reply:
			v, _ := resp.val.(T)
			return v, resp.err
		default:
			return zero, ErrStopped
		}
	}
}

// Notify inserts or updates a notification and returns its id.
func (d *Dispatcher) Notify(ctx context.Context, spec store.Spec) (uint32, error) {
	return call(ctx, d, func() (uint32, error) {
		return d.notify(spec)
	})
}

// CloseNotification closes id on behalf of its sender. Unknown ids are
// ignored.
func (d *Dispatcher) CloseNotification(ctx context.Context, id uint32) error {
	_, err := call(ctx, d, func() (bool, error) {
		if !d.closeNotification(id, model.ReasonCall) {
			d.logger.Debug("close requested for unknown notification", "id", id)
		}
		return true, nil
	})
	return err
}

// Dismiss closes id as if the user had dismissed it.
func (d *Dispatcher) Dismiss(ctx context.Context, id uint32) error {
	_, err := call(ctx, d, func() (bool, error) {
		if !d.closeNotification(id, model.ReasonUser) {
			return false, fmt.Errorf("failed to dismiss %d: %w", id, store.ErrNotFound)
		}
		return true, nil
	})
	return err
}

// DismissAll closes every live notification and returns how many closed.
func (d *Dispatcher) DismissAll(ctx context.Context) (int, error) {
	return call(ctx, d, func() (int, error) {
		return d.closeAll(model.ReasonUser), nil
	})
}

// InvokeAction invokes an action as if its button had been clicked.
func (d *Dispatcher) InvokeAction(ctx context.Context, id uint32, key string) error {
	_, err := call(ctx, d, func() (bool, error) {
		if err := d.invokeAction(id, key); err != nil {
			return false, fmt.Errorf("failed to invoke %q on %d: %w", key, id, err)
		}
		return true, nil
	})
	return err
}

// List returns the live notifications in display order.
func (d *Dispatcher) List(ctx context.Context) ([]model.ListEntry, error) {
	return call(ctx, d, func() ([]model.ListEntry, error) {
		return d.list(), nil
	})
}

// Status returns the daemon state.
func (d *Dispatcher) Status(ctx context.Context) (model.Status, error) {
	return call(ctx, d, func() (model.Status, error) {
		return d.status(), nil
	})
}

// SetInhibited turns do-not-disturb on or off. While inhibited, only
// critical notifications are shown; the rest wait.
func (d *Dispatcher) SetInhibited(ctx context.Context, on bool, source string) (model.Status, error) {
	return call(ctx, d, func() (model.Status, error) {
		if d.setInhibited(on, source) {
			d.settle()
			d.emitter.StateChanged(d.status())
		}
		return d.status(), nil
	})
}

// SetMuted turns notification sounds on or off.
func (d *Dispatcher) SetMuted(ctx context.Context, on bool, source string) (model.Status, error) {
	return call(ctx, d, func() (model.Status, error) {
		if d.setMuted(on, source) {
			d.emitter.StateChanged(d.status())
		}
		return d.status(), nil
	})
}

// SetIdle records whether the session is idle. With pause_on_idle set,
// expiry timers stop while idle and resume with their remaining time.
func (d *Dispatcher) SetIdle(ctx context.Context, idle bool) (model.Status, error) {
	return call(ctx, d, func() (model.Status, error) {
		if d.idle != idle {
			d.idle = idle
			d.relayout = true
			d.logger.Debug("session idle changed", "idle", idle)
			d.emitter.StateChanged(d.status())
		}
		return d.status(), nil
	})
}

// History returns up to limit closed notifications, newest first. A limit
// of zero returns everything retained.
func (d *Dispatcher) History(ctx context.Context, limit int) ([]history.Entry, error) {
	return call(ctx, d, func() ([]history.Entry, error) {
		if d.history == nil {
			return nil, nil
		}
		return d.history.Recent(limit), nil
	})
}

// ClearHistory discards all recorded history.
func (d *Dispatcher) ClearHistory(ctx context.Context) error {
	_, err := call(ctx, d, func() (bool, error) {
		if d.history != nil {
			d.history.Clear()
		}
		return true, nil
	})
	return err
}

// Reload re-reads the configuration file. On failure the active
// configuration is kept and the error returned. The file is read on the
// caller's goroutine; only the result is handed to the loop.
func (d *Dispatcher) Reload(ctx context.Context) error {
	cfg, loadErr := d.holder.Load()
	_, err := call(ctx, d, func() (bool, error) {
		if loadErr != nil {
			d.logger.Warn("configuration reload failed, keeping previous", "error", loadErr)
			d.notifier.NotifyConfigError(loadErr)
			return false, fmt.Errorf("failed to reload config: %w", loadErr)
		}
		d.applyConfig(cfg)
		d.notifier.NotifyConfigReloaded()
		return true, nil
	})
	return err
}

// persistState applies fn to the in-memory state and queues it for the
// state writer. Write failures are logged; the in-memory state is
// authoritative.
func (d *Dispatcher) persistState(fn func(st *history.State)) {
	if d.writer == nil {
		return
	}
	fn(&d.state)
	d.writer.Save(d.state)
}
