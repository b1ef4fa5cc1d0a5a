package dbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/model"
)

const (
	// ControlInterface is the control interface name.
	ControlInterface = "io.github.jmylchreest.Glint"
	// ControlPath is the control object path.
	ControlPath = "/io/github/jmylchreest/Glint"
	// ControlBusName is the bus name claimed for control.
	ControlBusName = "io.github.jmylchreest.Glint"
)

// controlSource tags state changes made over the control interface.
const controlSource = "control"

// Controller is the daemon surface exposed for external tools.
type Controller interface {
	List(ctx context.Context) ([]model.ListEntry, error)
	Status(ctx context.Context) (model.Status, error)
	Dismiss(ctx context.Context, id uint32) error
	DismissAll(ctx context.Context) (int, error)
	InvokeAction(ctx context.Context, id uint32, key string) error
	SetInhibited(ctx context.Context, on bool, source string) (model.Status, error)
	SetMuted(ctx context.Context, on bool, source string) (model.Status, error)
	History(ctx context.Context, limit int) ([]history.Entry, error)
	ClearHistory(ctx context.Context) error
	Reload(ctx context.Context) error
}

// ControlServer exports the control interface. Structured results are
// returned as JSON strings.
type ControlServer struct {
	conn       *dbus.Conn
	logger     *slog.Logger
	controller Controller
	signals    *signalQueue

	mu      sync.Mutex
	running bool
}

// NewControlServer creates a control server for controller.
func NewControlServer(controller Controller, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{
		logger:     logger,
		controller: controller,
		signals:    newSignalQueue(logger),
	}
}

// Start exports the control object and claims its bus name.
func (s *ControlServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("control server already running")
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s.conn = conn

	if err := conn.Export(s, ControlPath, ControlInterface); err != nil {
		return fmt.Errorf("failed to export control object: %w", err)
	}
	node := &introspect.Node{
		Name: ControlPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    ControlInterface,
				Methods: controlMethods(),
				Signals: []introspect.Signal{
					{Name: "StateChanged", Args: []introspect.Arg{{Name: "status", Type: "s"}}},
				},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ControlPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ControlBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", ControlBusName)
	}

	s.signals.start(ctx, conn)
	s.running = true
	s.logger.Info("D-Bus control server started", "interface", ControlInterface, "path", ControlPath)
	return nil
}

// Stop releases the control name.
func (s *ControlServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.signals.stop()
	if _, err := s.conn.ReleaseName(ControlBusName); err != nil {
		s.logger.Warn("failed to release bus name", "name", ControlBusName, "error", err)
	}
	return nil
}

// StateChanged emits the StateChanged signal with the status as JSON.
func (s *ControlServer) StateChanged(st model.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		s.logger.Warn("failed to encode status", "error", err)
		return
	}
	s.signals.push(signal{
		path:   ControlPath,
		member: ControlInterface + ".StateChanged",
		args:   []any{string(data)},
	})
}

func (s *ControlServer) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

func encode(v any, err error) (string, *dbus.Error) {
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", dbus.MakeFailedError(fmt.Errorf("failed to encode result: %w", err))
	}
	return string(data), nil
}

func failed(err error) *dbus.Error {
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// List returns the live notifications as JSON.
// D-Bus method: List() -> s
func (s *ControlServer) List() (string, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	return encode(s.controller.List(ctx))
}

// Status returns the daemon status as JSON.
// D-Bus method: Status() -> s
func (s *ControlServer) Status() (string, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	return encode(s.controller.Status(ctx))
}

// Dismiss closes one notification as dismissed by the user.
// D-Bus method: Dismiss(u)
func (s *ControlServer) Dismiss(id uint32) *dbus.Error {
	ctx, cancel := s.callContext()
	defer cancel()
	return failed(s.controller.Dismiss(ctx, id))
}

// DismissAll closes every notification and returns how many closed.
// D-Bus method: DismissAll() -> u
func (s *ControlServer) DismissAll() (uint32, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	n, err := s.controller.DismissAll(ctx)
	if err != nil {
		return 0, dbus.MakeFailedError(err)
	}
	return uint32(n), nil
}

// InvokeAction invokes an action on a notification.
// D-Bus method: InvokeAction(us)
func (s *ControlServer) InvokeAction(id uint32, key string) *dbus.Error {
	ctx, cancel := s.callContext()
	defer cancel()
	return failed(s.controller.InvokeAction(ctx, id, key))
}

// SetInhibited turns do-not-disturb on or off and returns the status.
// D-Bus method: SetInhibited(b) -> s
func (s *ControlServer) SetInhibited(on bool) (string, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	return encode(s.controller.SetInhibited(ctx, on, controlSource))
}

// SetMuted turns sounds on or off and returns the status.
// D-Bus method: SetMuted(b) -> s
func (s *ControlServer) SetMuted(on bool) (string, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	return encode(s.controller.SetMuted(ctx, on, controlSource))
}

// History returns recent closed notifications as JSON, newest first.
// D-Bus method: History(u) -> s
func (s *ControlServer) History(limit uint32) (string, *dbus.Error) {
	ctx, cancel := s.callContext()
	defer cancel()
	entries, err := s.controller.History(ctx, int(limit))
	if entries == nil {
		entries = []history.Entry{}
	}
	return encode(entries, err)
}

// ClearHistory discards recorded history.
// D-Bus method: ClearHistory()
func (s *ControlServer) ClearHistory() *dbus.Error {
	ctx, cancel := s.callContext()
	defer cancel()
	return failed(s.controller.ClearHistory(ctx))
}

// Reload re-reads the configuration file.
// D-Bus method: Reload()
func (s *ControlServer) Reload() *dbus.Error {
	ctx, cancel := s.callContext()
	defer cancel()
	return failed(s.controller.Reload(ctx))
}

func controlMethods() []introspect.Method {
	out := func(name, typ string) introspect.Arg {
		return introspect.Arg{Name: name, Type: typ, Direction: "out"}
	}
	in := func(name, typ string) introspect.Arg {
		return introspect.Arg{Name: name, Type: typ, Direction: "in"}
	}
	return []introspect.Method{
		{Name: "List", Args: []introspect.Arg{out("notifications", "s")}},
		{Name: "Status", Args: []introspect.Arg{out("status", "s")}},
		{Name: "Dismiss", Args: []introspect.Arg{in("id", "u")}},
		{Name: "DismissAll", Args: []introspect.Arg{out("count", "u")}},
		{Name: "InvokeAction", Args: []introspect.Arg{in("id", "u"), in("action_key", "s")}},
		{Name: "SetInhibited", Args: []introspect.Arg{in("inhibited", "b"), out("status", "s")}},
		{Name: "SetMuted", Args: []introspect.Arg{in("muted", "b"), out("status", "s")}},
		{Name: "History", Args: []introspect.Arg{in("limit", "u"), out("entries", "s")}},
		{Name: "ClearHistory"},
		{Name: "Reload"},
	}
}
