package dbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

// Client talks to a running glintd over the session bus.
type Client struct {
	conn          *dbus.Conn
	control       dbus.BusObject
	notifications dbus.BusObject
}

// Dial connects to the session bus.
func Dial() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{
		conn:          conn,
		control:       conn.Object(ControlBusName, ControlPath),
		notifications: conn.Object(DBusBusName, DBusPath),
	}, nil
}

// Close closes the client's private connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args ...any) *dbus.Call {
	return c.control.CallWithContext(ctx, ControlInterface+"."+method, 0, args...)
}

func (c *Client) callJSON(ctx context.Context, v any, method string, args ...any) error {
	var s string
	if err := c.call(ctx, method, args...).Store(&s); err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// List returns the live notifications.
func (c *Client) List(ctx context.Context) ([]model.ListEntry, error) {
	var out []model.ListEntry
	err := c.callJSON(ctx, &out, "List")
	return out, err
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (model.Status, error) {
	var st model.Status
	err := c.callJSON(ctx, &st, "Status")
	return st, err
}

// Dismiss closes one notification.
func (c *Client) Dismiss(ctx context.Context, id uint32) error {
	if err := c.call(ctx, "Dismiss", id).Err; err != nil {
		return fmt.Errorf("failed to dismiss %d: %w", id, err)
	}
	return nil
}

// DismissAll closes every notification.
func (c *Client) DismissAll(ctx context.Context) (int, error) {
	var n uint32
	if err := c.call(ctx, "DismissAll").Store(&n); err != nil {
		return 0, fmt.Errorf("failed to dismiss all: %w", err)
	}
	return int(n), nil
}

// InvokeAction invokes an action on a notification.
func (c *Client) InvokeAction(ctx context.Context, id uint32, key string) error {
	if err := c.call(ctx, "InvokeAction", id, key).Err; err != nil {
		return fmt.Errorf("failed to invoke %q on %d: %w", key, id, err)
	}
	return nil
}

// SetInhibited turns do-not-disturb on or off.
func (c *Client) SetInhibited(ctx context.Context, on bool) (model.Status, error) {
	var st model.Status
	err := c.callJSON(ctx, &st, "SetInhibited", on)
	return st, err
}

// SetMuted turns sounds on or off.
func (c *Client) SetMuted(ctx context.Context, on bool) (model.Status, error) {
	var st model.Status
	err := c.callJSON(ctx, &st, "SetMuted", on)
	return st, err
}

// History returns up to limit closed notifications, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	var out []history.Entry
	err := c.callJSON(ctx, &out, "History", uint32(max(limit, 0)))
	return out, err
}

// ClearHistory discards recorded history.
func (c *Client) ClearHistory(ctx context.Context) error {
	if err := c.call(ctx, "ClearHistory").Err; err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Reload asks the daemon to re-read its configuration.
func (c *Client) Reload(ctx context.Context) error {
	if err := c.call(ctx, "Reload").Err; err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	return nil
}

// Notify sends a notification through the standard interface.
func (c *Client) Notify(ctx context.Context, n *DBusNotification) (uint32, error) {
	hints := n.Hints
	if hints == nil {
		hints = map[string]dbus.Variant{}
	}
	actions := n.Actions
	if actions == nil {
		actions = []string{}
	}
	var id uint32
	err := c.notifications.CallWithContext(ctx, DBusInterface+".Notify", 0,
		n.AppName, n.ReplacesID, n.AppIcon, n.Summary, n.Body, actions, hints, n.ExpireTimeout,
	).Store(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to send notification: %w", err)
	}
	return id, nil
}

// WatchState delivers each StateChanged signal until ctx is done.
func (c *Client) WatchState(ctx context.Context) (<-chan model.Status, error) {
	if err := c.conn.AddMatchSignal(
		dbus.WithMatchObjectPath(ControlPath),
		dbus.WithMatchInterface(ControlInterface),
		dbus.WithMatchMember("StateChanged"),
	); err != nil {
		return nil, fmt.Errorf("failed to subscribe to state changes: %w", err)
	}

	raw := make(chan *dbus.Signal, 16)
	c.conn.Signal(raw)
	out := make(chan model.Status, 16)

	go func() {
		defer close(out)
		defer c.conn.RemoveSignal(raw)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				if sig.Name != ControlInterface+".StateChanged" || len(sig.Body) == 0 {
					continue
				}
				s, _ := sig.Body[0].(string)
				var st model.Status
				if err := json.Unmarshal([]byte(s), &st); err != nil {
					continue
				}
				select {
				case out <- st:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
