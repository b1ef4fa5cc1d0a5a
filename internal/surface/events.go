package surface

import (
	"context"
	"sync"

	"github.com/jmylchreest/glint/internal/layout"
)

// EventKind identifies a compositor event.
type EventKind int

const (
	// EventConfigure acknowledges a target size.
	EventConfigure EventKind = iota
	// EventClosed reports that the compositor destroyed a target.
	EventClosed
	// EventOutput reports new output geometry.
	EventOutput
	// EventMotion reports the pointer position over a target.
	EventMotion
	// EventLeave reports that the pointer left a target.
	EventLeave
	// EventButton reports a released pointer button.
	EventButton
	// EventKey reports a key press while a target has focus.
	EventKey
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConfigure:
		return "configure"
	case EventClosed:
		return "closed"
	case EventOutput:
		return "output"
	case EventMotion:
		return "motion"
	case EventLeave:
		return "leave"
	case EventButton:
		return "button"
	case EventKey:
		return "key"
	default:
		return "unknown"
	}
}

// Pointer buttons as reported by the compositor.
const (
	ButtonLeft   uint = 1
	ButtonMiddle uint = 2
	ButtonRight  uint = 3
)

// Event is delivered from the compositor into the event loop. Pointer
// coordinates are relative to the target's origin.
type Event struct {
	Kind   EventKind
	Target Target

	Width  int
	Height int
	Output layout.Output

	X      float64
	Y      float64
	Button uint

	Key   string
	Shift bool
	Ctrl  bool
	Alt   bool
}

// EventQueue buffers compositor events without ever blocking the poster.
// The compositor thread calls Post; the loop reads from C.
type EventQueue struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
	out     chan Event

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewEventQueue creates a stopped queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
}

// C returns the channel the loop selects on.
func (q *EventQueue) C() <-chan Event {
	return q.out
}

// Post appends an event. It never blocks.
func (q *EventQueue) Post(ev Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of events not yet delivered.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start begins forwarding events to C in post order.
func (q *EventQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	q.mu.Unlock()

	go q.pump(ctx)
}

// Stop halts forwarding. Undelivered events are dropped.
func (q *EventQueue) Stop() {
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

func (q *EventQueue) pump(ctx context.Context) {
	defer close(q.doneCh)

	for {
		q.mu.Lock()
		var (
			ev  Event
			has bool
		)
		if len(q.pending) > 0 {
			ev = q.pending[0]
			q.pending[0] = Event{}
			q.pending = q.pending[1:]
			has = true
		}
		q.mu.Unlock()

		if !has {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-q.wake:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case q.out <- ev:
		}
	}
}
