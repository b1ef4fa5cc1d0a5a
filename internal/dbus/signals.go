package dbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/glint/internal/model"
)

// signalQueueSize bounds signals waiting to be written to the bus.
const signalQueueSize = 256

type signal struct {
	path   dbus.ObjectPath
	member string
	args   []any
}

// signalQueue writes signals on its own goroutine so the event loop never
// waits on the bus socket.
type signalQueue struct {
	logger *slog.Logger
	ch     chan signal

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newSignalQueue(logger *slog.Logger) *signalQueue {
	return &signalQueue{
		logger: logger,
		ch:     make(chan signal, signalQueueSize),
	}
}

func (q *signalQueue) start(ctx context.Context, conn *dbus.Conn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	go q.run(ctx, conn)
}

func (q *signalQueue) stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()
	<-q.doneCh
}

// push queues a signal. It drops the signal when the queue is full.
func (q *signalQueue) push(sig signal) bool {
	select {
	case q.ch <- sig:
		return true
	default:
		q.logger.Warn("signal queue full, dropping signal", "member", sig.member)
		return false
	}
}

func (q *signalQueue) run(ctx context.Context, conn *dbus.Conn) {
	defer close(q.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case sig := <-q.ch:
			if err := conn.Emit(sig.path, sig.member, sig.args...); err != nil {
				q.logger.Warn("failed to emit signal", "member", sig.member, "error", err)
				continue
			}
			q.logger.Debug("emitted signal", "member", sig.member)
		}
	}
}

// NotificationClosed emits the NotificationClosed signal.
func (s *NotificationServer) NotificationClosed(id uint32, reason model.CloseReason) {
	s.signals.push(signal{
		path:   DBusPath,
		member: DBusInterface + ".NotificationClosed",
		args:   []any{id, uint32(reason)},
	})
}

// ActionInvoked emits the ActionInvoked signal.
func (s *NotificationServer) ActionInvoked(id uint32, key string) {
	s.signals.push(signal{
		path:   DBusPath,
		member: DBusInterface + ".ActionInvoked",
		args:   []any{id, key},
	})
}

// Emitter fans event-loop signals out to the notification and control
// interfaces. Either side may be nil.
type Emitter struct {
	Notifications *NotificationServer
	Control       *ControlServer
}

// NotificationClosed implements the event loop's emitter.
func (e Emitter) NotificationClosed(id uint32, reason model.CloseReason) {
	if e.Notifications != nil {
		e.Notifications.NotificationClosed(id, reason)
	}
}

// ActionInvoked implements the event loop's emitter.
func (e Emitter) ActionInvoked(id uint32, key string) {
	if e.Notifications != nil {
		e.Notifications.ActionInvoked(id, key)
	}
}

// StateChanged implements the event loop's emitter.
func (e Emitter) StateChanged(st model.Status) {
	if e.Control != nil {
		e.Control.StateChanged(st)
	}
}
