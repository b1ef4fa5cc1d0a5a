package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/glint/internal/audio"
	"github.com/jmylchreest/glint/internal/compositor/headless"
	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/daemon"
	"github.com/jmylchreest/glint/internal/dbus"
	"github.com/jmylchreest/glint/internal/display"
	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/icons"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/metrics"
	"github.com/jmylchreest/glint/internal/surface"
)

// run loads the configuration and runs the daemon until a signal or a
// fatal error.
func run(opts options) error {
	path := opts.configPath
	if path == "" {
		path = config.DaemonConfigPath()
	}
	cfg, err := config.LoadDaemonConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.metrics != "" {
		cfg.Metrics.Listen = opts.metrics
	}

	logger := newLogger(opts.logLevel, cfg.General.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting glintd", "version", version, "config", path, "headless", opts.headless)

	holder := config.NewHolder(path, cfg)
	events := surface.NewEventQueue()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.headless {
		comp := headless.New(events, layout.DefaultOutput)
		return serve(ctx, holder, comp, events, logger)
	}
	return runGTK(ctx, holder, events, logger)
}

// runGTK runs the daemon inside a libadwaita application. The GTK main loop
// owns the main thread; everything else runs under serve.
func runGTK(ctx context.Context, holder *config.Holder, events *surface.EventQueue, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := adw.NewApplication(appID, 0)
	errCh := make(chan error, 1)
	started := false

	app.ConnectActivate(func() {
		if started {
			logger.Warn("application already running")
			return
		}
		started = true

		comp := display.New(&app.Application, events, logger)
		if err := comp.Start(holder.Get().Layout.Output); err != nil {
			errCh <- fmt.Errorf("failed to start display: %w", err)
			app.Quit()
			return
		}

		// No window exists until the first notification.
		app.Hold()
		go func() {
			errCh <- serve(ctx, holder, comp, events, logger)
			glib.IdleAdd(func() {
				comp.Stop()
				app.Release()
				app.Quit()
			})
		}()
	})

	app.ConnectShutdown(func() {
		logger.Info("application shutting down")
		cancel()
	})

	status := app.Run([]string{os.Args[0]})
	cancel()

	if !started {
		return fmt.Errorf("application exited before activation (status %d)", status)
	}
	err := <-errCh
	if err == nil && status != 0 {
		err = fmt.Errorf("application exited with status %d", status)
	}
	return err
}

// serve wires the daemon components around the compositor and blocks until
// ctx is cancelled or a component fails.
func serve(ctx context.Context, holder *config.Holder, comp surface.Compositor, events *surface.EventQueue, logger *slog.Logger) error {
	cfg := holder.Get()

	events.Start(ctx)
	defer events.Stop()

	m := metrics.New()

	sounds := audio.NewManager(cfg, logger)
	if err := sounds.Start(ctx); err != nil {
		logger.Warn("failed to start audio manager", "error", err)
	}
	defer sounds.Stop()

	loader := icons.NewLoader(icons.NewResolver(cfg.Icons.Theme), cfg.Icons.Workers, logger)
	loader.Start(ctx)
	defer loader.Stop()

	rec := openHistory(cfg, logger)
	if rec != nil {
		rec.Start()
		defer func() {
			if err := rec.Stop(); err != nil {
				logger.Warn("failed to close history", "error", err)
			}
		}()
	}

	statePath := history.StatePath()
	emitter := &dbus.Emitter{}
	d, err := daemon.New(daemon.Options{
		Config:     holder,
		Compositor: comp,
		Events:     events.C(),
		Emitter:    emitter,
		Sounds:     sounds,
		Icons:      loader,
		Opener:     dbus.NewURIOpener(logger),
		History:    rec,
		Metrics:    m,
		StatePath:  statePath,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	notifications := dbus.NewNotificationServer(d, logger)
	notifications.SetServerInfo(dbus.ServerInfo{
		Name:        appName,
		Vendor:      "glint",
		Version:     version,
		SpecVersion: "1.2",
	})
	control := dbus.NewControlServer(d, logger)
	emitter.Notifications = notifications
	emitter.Control = control

	g, gctx := errgroup.WithContext(ctx)

	if err := notifications.Start(gctx); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	defer func() { _ = notifications.Stop() }()

	if err := control.Start(gctx); err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}
	defer func() { _ = control.Stop() }()

	g.Go(func() error {
		return d.Run(gctx)
	})

	g.Go(func() error {
		select {
		case err := <-notifications.Lost():
			return err
		case <-gctx.Done():
			return nil
		}
	})

	if addr := cfg.Metrics.Listen; addr != "" {
		g.Go(func() error {
			if err := m.Serve(gctx, addr, logger); err != nil {
				logger.Warn("metrics endpoint stopped", "error", err)
			}
			return nil
		})
	}

	configWatcher := config.NewWatcher(holder, logger)
	configWatcher.SetReloadCallback(d.PostConfig)
	configWatcher.SetErrorCallback(d.PostConfigError)
	if err := configWatcher.Start(gctx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	} else {
		defer configWatcher.Stop()
	}

	stateWatcher := daemon.NewStateWatcher(statePath, logger)
	stateWatcher.SetChangeCallback(func() {
		if err := d.SyncState(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("failed to apply external state change", "error", err)
		}
	})
	stateWatcher.Start(gctx)
	defer stateWatcher.Stop()

	idleWatcher := dbus.NewIdleWatcher(logger)
	if err := idleWatcher.Watch(gctx, func(idle bool) {
		if _, err := d.SetIdle(gctx, idle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("failed to apply idle state", "error", err)
		}
	}); err != nil {
		logger.Warn("failed to start idle watcher", "error", err)
	}

	logger.Info("glintd ready", "dbus_interface", dbus.DBusInterface, "control_interface", dbus.ControlInterface)

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("glintd stopped")
	return nil
}

// openHistory opens the configured history. A file that cannot be opened
// degrades to memory-only history.
func openHistory(cfg *config.DaemonConfig, logger *slog.Logger) *history.Recorder {
	if !cfg.History.Enabled {
		return nil
	}
	path := cfg.HistoryPath()
	rec, err := history.Open(path, cfg.History.Length, logger)
	if err != nil {
		logger.Warn("history file unavailable, keeping history in memory", "path", path, "error", err)
		return history.NewMemory(cfg.History.Length, logger)
	}
	logger.Info("history loaded", "path", path, "entries", rec.Len())
	return rec
}
