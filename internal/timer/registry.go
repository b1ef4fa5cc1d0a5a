// Package timer implements the deadline registry driven by the daemon event
// loop. Entries are one-shot; cancellation is tracked with generation
// counters so an entry that was cancelled or superseded never runs, even if
// it is already due when the loop wakes.
package timer

import (
	"container/heap"
	"time"
)

// Kind distinguishes the timers a notification can own.
type Kind int

const (
	// KindExpiry closes the notification when due.
	KindExpiry Kind = iota
	// KindAnimation advances an animation by one frame.
	KindAnimation
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindAnimation {
		return "animation"
	}
	return "expiry"
}

// Clock is the time source of a Registry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Handle identifies one scheduled entry.
type Handle struct {
	Owner uint32
	Kind  Kind
	gen   uint64
}

// Valid reports whether the handle refers to a scheduled entry at all.
func (h Handle) Valid() bool { return h.gen != 0 }

type key struct {
	owner uint32
	kind  Kind
}

type entry struct {
	key      key
	gen      uint64
	deadline time.Time
	seq      uint64
	fn       func()
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Registry tracks scheduled deadlines. It is not safe for concurrent use;
// it belongs to the event loop goroutine.
type Registry struct {
	clock   Clock
	heap    entryHeap
	live    map[key]uint64 // current generation per (owner, kind)
	nextGen uint64
	seq     uint64
}

// NewRegistry creates an empty registry. A nil clock uses the wall clock.
func NewRegistry(clock Clock) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	return &Registry{
		clock: clock,
		live:  make(map[key]uint64),
	}
}

// Schedule arms a one-shot timer for owner that runs fn after d. Scheduling
// the same owner and kind again supersedes the earlier entry. A zero or
// negative duration is due immediately but only runs on the next Fire call.
func (r *Registry) Schedule(owner uint32, kind Kind, d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	r.nextGen++
	r.seq++
	k := key{owner: owner, kind: kind}
	r.live[k] = r.nextGen
	heap.Push(&r.heap, &entry{
		key:      k,
		gen:      r.nextGen,
		deadline: r.clock.Now().Add(d),
		seq:      r.seq,
		fn:       fn,
	})
	return Handle{Owner: owner, Kind: kind, gen: r.nextGen}
}

// Cancel disarms the entry behind h. It is a no-op when the entry already
// fired, was cancelled, or was superseded.
func (r *Registry) Cancel(h Handle) {
	k := key{owner: h.Owner, kind: h.Kind}
	if gen, ok := r.live[k]; ok && gen == h.gen {
		delete(r.live, k)
	}
}

// CancelOwner disarms every kind of timer owned by owner.
func (r *Registry) CancelOwner(owner uint32) {
	delete(r.live, key{owner: owner, kind: KindExpiry})
	delete(r.live, key{owner: owner, kind: KindAnimation})
}

// Pending reports whether owner has a live timer of the given kind.
func (r *Registry) Pending(owner uint32, kind Kind) bool {
	_, ok := r.live[key{owner: owner, kind: kind}]
	return ok
}

// Deadline returns the deadline of owner's live timer of the given kind.
func (r *Registry) Deadline(owner uint32, kind Kind) (time.Time, bool) {
	gen, ok := r.live[key{owner: owner, kind: kind}]
	if !ok {
		return time.Time{}, false
	}
	for _, e := range r.heap {
		if e.gen == gen {
			return e.deadline, true
		}
	}
	return time.Time{}, false
}

// Len returns the number of live entries.
func (r *Registry) Len() int { return len(r.live) }

func (r *Registry) stale(e *entry) bool {
	gen, ok := r.live[e.key]
	return !ok || gen != e.gen
}

// NextDeadline returns the earliest live deadline. Stale entries at the head
// of the heap are discarded first, so a cancellation is reflected at once.
func (r *Registry) NextDeadline() (time.Time, bool) {
	for r.heap.Len() > 0 {
		head := r.heap[0]
		if !r.stale(head) {
			return head.deadline, true
		}
		heap.Pop(&r.heap)
	}
	return time.Time{}, false
}

// Fire runs every live entry due at now and returns how many ran. Due
// entries are collected before any callback runs; entries scheduled by a
// callback wait for the next call, and an entry cancelled by an earlier
// callback in the same batch is skipped.
func (r *Registry) Fire(now time.Time) int {
	var due []*entry
	for r.heap.Len() > 0 && !r.heap[0].deadline.After(now) {
		e := heap.Pop(&r.heap).(*entry)
		if r.stale(e) {
			continue
		}
		due = append(due, e)
	}

	fired := 0
	for _, e := range due {
		if r.stale(e) {
			continue
		}
		delete(r.live, e.key)
		fired++
		if e.fn != nil {
			e.fn()
		}
	}
	return fired
}
