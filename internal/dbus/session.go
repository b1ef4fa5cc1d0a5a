package dbus

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverName      = "org.freedesktop.ScreenSaver"
	screenSaverPath      = "/org/freedesktop/ScreenSaver"
	screenSaverInterface = "org.freedesktop.ScreenSaver"

	portalName      = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	portalOpenURI   = "org.freedesktop.portal.OpenURI.OpenURI"
	openCallTimeout = 5 * time.Second
)

// IdleWatcher follows the session screensaver. The session counts as idle
// while the screensaver is active.
type IdleWatcher struct {
	logger *slog.Logger
}

// NewIdleWatcher creates a watcher.
func NewIdleWatcher(logger *slog.Logger) *IdleWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleWatcher{logger: logger}
}

// Watch reports the current idle state and every later change to fn until
// ctx is cancelled. fn runs on the watcher goroutine.
func (w *IdleWatcher) Watch(ctx context.Context, fn func(idle bool)) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(screenSaverInterface),
		dbus.WithMatchMember("ActiveChanged"),
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to watch screensaver: %w", err)
	}

	ch := make(chan *dbus.Signal, 8)
	conn.Signal(ch)

	go func() {
		defer func() { _ = conn.Close() }()
		defer conn.RemoveSignal(ch)

		callCtx, cancel := context.WithTimeout(ctx, openCallTimeout)
		var active bool
		err := conn.Object(screenSaverName, screenSaverPath).
			CallWithContext(callCtx, screenSaverInterface+".GetActive", 0).Store(&active)
		cancel()
		if err != nil {
			w.logger.Debug("screensaver state unavailable", "error", err)
		} else if active {
			fn(true)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if idle, ok := idleFromSignal(sig); ok {
					w.logger.Debug("session idle changed", "idle", idle)
					fn(idle)
				}
			}
		}
	}()

	w.logger.Debug("idle watcher started", "interface", screenSaverInterface)
	return nil
}

// idleFromSignal decodes an ActiveChanged signal.
func idleFromSignal(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Name != screenSaverInterface+".ActiveChanged" || len(sig.Body) == 0 {
		return false, false
	}
	active, ok := sig.Body[0].(bool)
	return active, ok
}

// URIOpener opens links through the desktop portal, falling back to
// xdg-open.
type URIOpener struct {
	logger *slog.Logger
	// command is the fallback launcher.
	command string
}

// NewURIOpener creates an opener.
func NewURIOpener(logger *slog.Logger) *URIOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &URIOpener{logger: logger, command: "xdg-open"}
}

// Open starts opening uri and returns immediately.
func (o *URIOpener) Open(uri string) {
	go func() {
		if err := o.open(uri); err != nil {
			o.logger.Warn("failed to open link", "uri", uri, "error", err)
			return
		}
		o.logger.Debug("link opened", "uri", uri)
	}()
}

func (o *URIOpener) open(uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), openCallTimeout)
	defer cancel()

	perr := o.openPortal(ctx, uri)
	if perr == nil {
		return nil
	}
	o.logger.Debug("portal open failed, trying launcher", "command", o.command, "error", perr)

	c := exec.CommandContext(ctx, o.command, uri)
	if err := c.Run(); err != nil {
		return fmt.Errorf("failed to run %s: %w", o.command, err)
	}
	return nil
}

func (o *URIOpener) openPortal(ctx context.Context, uri string) error {
	conn, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	var handle dbus.ObjectPath
	return conn.Object(portalName, portalPath).
		CallWithContext(ctx, portalOpenURI, 0, "", uri, map[string]dbus.Variant{}).
		Store(&handle)
}
