package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func TestRegistry_FiresAtDeadline(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	var fired []uint32
	r.Schedule(1, KindExpiry, 5*time.Second, func() { fired = append(fired, 1) })
	r.Schedule(2, KindExpiry, 2*time.Second, func() { fired = append(fired, 2) })

	deadline, ok := r.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, clock.now.Add(2*time.Second), deadline)

	clock.Advance(time.Second)
	assert.Equal(t, 0, r.Fire(clock.Now()))

	clock.Advance(time.Second)
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, []uint32{2}, fired)

	clock.Advance(3 * time.Second)
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, []uint32{2, 1}, fired)

	_, ok = r.NextDeadline()
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_CancelIsVisibleImmediately(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	h := r.Schedule(1, KindExpiry, time.Second, func() { t.Fatal("cancelled timer fired") })
	r.Schedule(2, KindExpiry, 3*time.Second, func() {})

	r.Cancel(h)
	deadline, ok := r.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, clock.now.Add(3*time.Second), deadline)

	clock.Advance(time.Second)
	assert.Equal(t, 0, r.Fire(clock.Now()))
}

func TestRegistry_CancelWithinSameIteration(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	var second Handle
	fired := map[uint32]bool{}
	r.Schedule(1, KindExpiry, time.Second, func() {
		fired[1] = true
		// Both entries are already due; cancelling the second from the
		// first callback must still suppress it.
		r.Cancel(second)
	})
	second = r.Schedule(2, KindExpiry, time.Second, func() { fired[2] = true })

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.True(t, fired[1])
	assert.False(t, fired[2])
}

func TestRegistry_CancelAfterFireIsNoop(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	count := 0
	h := r.Schedule(1, KindExpiry, 0, func() { count++ })
	r.Fire(clock.Now())
	r.Cancel(h)

	// A fresh timer for the same owner must survive the stale cancel.
	r.Schedule(1, KindExpiry, 0, func() { count++ })
	r.Cancel(h)
	r.Fire(clock.Now())
	assert.Equal(t, 2, count)
}

func TestRegistry_RescheduleSupersedes(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	var got []string
	old := r.Schedule(7, KindExpiry, time.Second, func() { got = append(got, "old") })
	r.Schedule(7, KindExpiry, 5*time.Second, func() { got = append(got, "new") })

	clock.Advance(2 * time.Second)
	r.Fire(clock.Now())
	assert.Empty(t, got)

	r.Cancel(old)
	assert.True(t, r.Pending(7, KindExpiry))

	clock.Advance(3 * time.Second)
	r.Fire(clock.Now())
	assert.Equal(t, []string{"new"}, got)
}

func TestRegistry_ZeroDurationNeverFiresReentrantly(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	var order []string
	r.Schedule(1, KindAnimation, 0, func() {
		order = append(order, "first")
		r.Schedule(1, KindAnimation, -time.Second, func() { order = append(order, "second") })
	})

	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, []string{"first"}, order)

	deadline, ok := r.NextDeadline()
	require.True(t, ok)
	assert.False(t, deadline.After(clock.Now()))

	assert.Equal(t, 1, r.Fire(clock.Now()))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRegistry_CancelOwner(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	r.Schedule(3, KindExpiry, time.Second, func() { t.Fatal("expiry fired") })
	r.Schedule(3, KindAnimation, time.Millisecond, func() { t.Fatal("animation fired") })
	r.CancelOwner(3)

	assert.Equal(t, 0, r.Len())
	clock.Advance(time.Minute)
	assert.Equal(t, 0, r.Fire(clock.Now()))
}

func TestRegistry_Deadline(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(clock)

	r.Schedule(4, KindExpiry, 4*time.Second, nil)
	d, ok := r.Deadline(4, KindExpiry)
	require.True(t, ok)
	assert.Equal(t, clock.now.Add(4*time.Second), d)

	_, ok = r.Deadline(4, KindAnimation)
	assert.False(t, ok)
}
