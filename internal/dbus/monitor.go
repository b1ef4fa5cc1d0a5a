package dbus

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/glint/internal/model"
)

// MonitorEventKind identifies observed bus traffic.
type MonitorEventKind int

const (
	// MonitorNotify is a Notify call from a client.
	MonitorNotify MonitorEventKind = iota
	// MonitorClosed is a NotificationClosed signal.
	MonitorClosed
	// MonitorAction is an ActionInvoked signal.
	MonitorAction
)

// MonitorEvent is one piece of observed notification traffic.
type MonitorEvent struct {
	Kind         MonitorEventKind
	Sender       string
	Notification *DBusNotification
	ID           uint32
	Reason       model.CloseReason
	ActionKey    string
}

// Monitor passively observes notification traffic on the session bus
// without owning any name. glintctl uses it to trace what clients send.
type Monitor struct {
	conn   *dbus.Conn
	logger *slog.Logger
}

// NewMonitor creates a monitor.
func NewMonitor(logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{logger: logger}
}

// Start connects a private bus connection, turns it into a monitor and
// delivers decoded events to handler until Stop.
func (m *Monitor) Start(handler func(MonitorEvent)) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	m.conn = conn

	rules := []string{
		"type='method_call',interface='" + DBusInterface + "',member='Notify'",
		"type='signal',interface='" + DBusInterface + "',member='NotificationClosed'",
		"type='signal',interface='" + DBusInterface + "',member='ActionInvoked'",
	}
	err = conn.BusObject().Call("org.freedesktop.DBus.Monitoring.BecomeMonitor", 0, rules, uint32(0)).Err
	if err != nil {
		m.logger.Warn("BecomeMonitor not available, trying eavesdrop", "error", err)
		for _, rule := range rules {
			if err := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule+",eavesdrop='true'").Err; err != nil {
				conn.Close()
				return fmt.Errorf("failed to add match rule (eavesdrop may require permissions): %w", err)
			}
		}
	}

	ch := make(chan *dbus.Message, 100)
	conn.Eavesdrop(ch)
	go m.process(ch, handler)
	return nil
}

func (m *Monitor) process(ch <-chan *dbus.Message, handler func(MonitorEvent)) {
	for msg := range ch {
		ev, ok := decodeMonitorMessage(msg)
		if !ok {
			continue
		}
		handler(ev)
	}
}

// decodeMonitorMessage turns an observed message into an event. Other
// traffic is ignored.
func decodeMonitorMessage(msg *dbus.Message) (MonitorEvent, bool) {
	iface, _ := msg.Headers[dbus.FieldInterface].Value().(string)
	member, _ := msg.Headers[dbus.FieldMember].Value().(string)
	sender, _ := msg.Headers[dbus.FieldSender].Value().(string)
	if iface != DBusInterface {
		return MonitorEvent{}, false
	}

	switch {
	case msg.Type == dbus.TypeMethodCall && member == "Notify":
		n, err := notificationFromBody(msg.Body)
		if err != nil {
			return MonitorEvent{}, false
		}
		return MonitorEvent{Kind: MonitorNotify, Sender: sender, Notification: n, ID: n.ReplacesID}, true
	case msg.Type == dbus.TypeSignal && member == "NotificationClosed" && len(msg.Body) >= 2:
		id, _ := msg.Body[0].(uint32)
		reason, _ := msg.Body[1].(uint32)
		return MonitorEvent{Kind: MonitorClosed, Sender: sender, ID: id, Reason: model.CloseReason(reason)}, true
	case msg.Type == dbus.TypeSignal && member == "ActionInvoked" && len(msg.Body) >= 2:
		id, _ := msg.Body[0].(uint32)
		key, _ := msg.Body[1].(string)
		return MonitorEvent{Kind: MonitorAction, Sender: sender, ID: id, ActionKey: key}, true
	}
	return MonitorEvent{}, false
}

// Stop closes the monitor connection.
func (m *Monitor) Stop() error {
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
