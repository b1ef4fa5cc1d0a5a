package daemon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/compositor/headless"
	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/history"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/model"
	"github.com/jmylchreest/glint/internal/render"
	"github.com/jmylchreest/glint/internal/store"
	"github.com/jmylchreest/glint/internal/surface"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type closedSignal struct {
	ID     uint32
	Reason model.CloseReason
}

type recordingEmitter struct {
	mu      sync.Mutex
	closed  []closedSignal
	actions []string
	states  []model.Status
	hook    func(closedSignal)
}

func (e *recordingEmitter) NotificationClosed(id uint32, reason model.CloseReason) {
	sig := closedSignal{ID: id, Reason: reason}
	e.mu.Lock()
	e.closed = append(e.closed, sig)
	hook := e.hook
	e.mu.Unlock()
	if hook != nil {
		hook(sig)
	}
}

// OnClosed registers fn to run on the loop goroutine for every closed signal.
func (e *recordingEmitter) OnClosed(fn func(closedSignal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hook = fn
}

func (e *recordingEmitter) ActionInvoked(id uint32, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, key)
}

func (e *recordingEmitter) StateChanged(st model.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, st)
}

func (e *recordingEmitter) Closed() []closedSignal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]closedSignal(nil), e.closed...)
}

func (e *recordingEmitter) Actions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.actions...)
}

func (e *recordingEmitter) States() []model.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Status(nil), e.states...)
}

type recordingOpener struct {
	mu   sync.Mutex
	uris []string
}

func (o *recordingOpener) Open(uri string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uris = append(o.uris, uri)
}

func (o *recordingOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.uris...)
}

type harness struct {
	d       *Dispatcher
	comp    *headless.Compositor
	clock   *fakeClock
	emitter *recordingEmitter
	history *history.Recorder
	opener  *recordingOpener
	errCh   chan error
}

func newHarness(t *testing.T, mutate func(cfg *config.DaemonConfig)) *harness {
	t.Helper()

	cfg := config.DefaultDaemonConfig()
	cfg.Animation.FadeIn = 0
	cfg.Audio.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := surface.NewEventQueue()
	events.Start(ctx)
	comp := headless.New(events, layout.Output{Width: 1920, Height: 1080, Scale: 1})

	h := &harness{
		comp:    comp,
		clock:   newFakeClock(),
		emitter: &recordingEmitter{},
		history: history.NewMemory(50, nil),
		opener:  &recordingOpener{},
		errCh:   make(chan error, 1),
	}
	d, err := New(Options{
		Config:     config.NewHolder("", cfg),
		Compositor: comp,
		Events:     events.C(),
		Clock:      h.clock,
		Emitter:    h.emitter,
		History:    h.history,
		Opener:     h.opener,
	})
	require.NoError(t, err)
	h.d = d

	go func() { h.errCh <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-d.Done()
		events.Stop()
	})
	return h
}

func (h *harness) notify(t *testing.T, spec store.Spec) uint32 {
	t.Helper()
	if spec.AppName == "" {
		spec.AppName = "test"
	}
	id, err := h.d.Notify(context.Background(), spec)
	require.NoError(t, err)
	return id
}

func (h *harness) list(t *testing.T) []model.ListEntry {
	t.Helper()
	entries, err := h.d.List(context.Background())
	require.NoError(t, err)
	return entries
}

func (h *harness) status(t *testing.T) model.Status {
	t.Helper()
	st, err := h.d.Status(context.Background())
	require.NoError(t, err)
	return st
}

func explicit(d time.Duration) model.Timeout {
	return model.Timeout{Kind: model.TimeoutExplicit, Duration: d}
}

func TestDispatcher_ExpiresAfterTimeout(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{Summary: "hello", Timeout: explicit(5000 * time.Millisecond)})
	require.NotZero(t, id)

	entries := h.list(t)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ExpiresAt)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *entries[0].ExpiresAt)

	h.clock.Advance(4999 * time.Millisecond)
	assert.Len(t, h.list(t), 1)

	h.clock.Advance(time.Millisecond)
	assert.Empty(t, h.list(t))
	assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonExpired}}, h.emitter.Closed())

	recent, err := h.d.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "hello", recent[0].Summary)
}

func TestDispatcher_NeverTimeoutStays(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "sticky", Timeout: model.Timeout{Kind: model.TimeoutNever}})
	h.clock.Advance(time.Hour)

	entries := h.list(t)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].ExpiresAt)
}

func TestDispatcher_ReplacesID(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{Summary: "v1", Timeout: explicit(5 * time.Second)})
	h.clock.Advance(3 * time.Second)

	got := h.notify(t, store.Spec{ReplacesID: id, Summary: "v2", Timeout: explicit(5 * time.Second)})
	assert.Equal(t, id, got)

	entries := h.list(t)
	require.Len(t, entries, 1)
	assert.Equal(t, "v2", entries[0].Summary)
	// The replacement restarts the full timeout.
	require.NotNil(t, entries[0].ExpiresAt)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *entries[0].ExpiresAt)
	assert.Empty(t, h.emitter.Closed())
}

func TestDispatcher_MalformedIsReportedUndefined(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{})

	assert.Empty(t, h.list(t))
	assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonUndefined}}, h.emitter.Closed())
}

func TestDispatcher_StackedDuplicateIsDismissed(t *testing.T) {
	h := newHarness(t, nil)

	first := h.notify(t, store.Spec{Summary: "same", Body: "body"})
	second := h.notify(t, store.Spec{Summary: "same", Body: "body"})
	assert.NotEqual(t, first, second)

	entries := h.list(t)
	require.Len(t, entries, 1)
	assert.Equal(t, first, entries[0].ID)
	assert.Equal(t, 2, entries[0].StackCount)
	assert.Equal(t, []closedSignal{{ID: second, Reason: model.CloseReasonDismissed}}, h.emitter.Closed())
}

func TestDispatcher_CloseNotification(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id := h.notify(t, store.Spec{Summary: "bye"})
	require.NoError(t, h.d.CloseNotification(ctx, id))
	// Unknown ids are ignored.
	require.NoError(t, h.d.CloseNotification(ctx, 9999))

	assert.Empty(t, h.list(t))
	assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonClosed}}, h.emitter.Closed())

	err := h.d.Dismiss(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDispatcher_DismissAll(t *testing.T) {
	h := newHarness(t, nil)

	for _, s := range []string{"a", "b", "c"} {
		h.notify(t, store.Spec{Summary: s})
	}
	n, err := h.d.DismissAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, h.list(t))
	for _, sig := range h.emitter.Closed() {
		assert.Equal(t, model.CloseReasonDismissed, sig.Reason)
	}
}

func TestDispatcher_InvokeAction(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		resident   bool
		wantErr    error
		wantClosed bool
	}{
		{name: "default closes", key: model.DefaultActionKey, wantClosed: true},
		{name: "button stays open", key: "reply"},
		{name: "resident stays open", key: model.DefaultActionKey, resident: true},
		{name: "unknown action", key: "nope", wantErr: store.ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			hints := model.DefaultHints()
			hints.Resident = tt.resident
			id := h.notify(t, store.Spec{
				Summary: "with actions",
				Hints:   hints,
				Actions: []model.Action{
					{Key: model.DefaultActionKey, Label: "Open"},
					{Key: "reply", Label: "Reply"},
				},
			})

			err := h.d.InvokeAction(context.Background(), id, tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.emitter.Actions())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{tt.key}, h.emitter.Actions())
			if tt.wantClosed {
				assert.Empty(t, h.list(t))
				assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonDismissed}}, h.emitter.Closed())
			} else {
				assert.Len(t, h.list(t), 1)
				assert.Empty(t, h.emitter.Closed())
			}
		})
	}
}

func TestDispatcher_HoverPausesExpiry(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "hover me", Timeout: explicit(5 * time.Second)})
	require.NotNil(t, h.comp.Current())

	h.comp.Move(20, 20)
	require.Eventually(t, func() bool {
		entries := h.list(t)
		return len(entries) == 1 && entries[0].ExpiresAt == nil
	}, waitFor, tick)

	h.clock.Advance(10 * time.Second)
	assert.Len(t, h.list(t), 1)

	h.comp.Leave()
	require.Eventually(t, func() bool {
		entries := h.list(t)
		return len(entries) == 1 && entries[0].ExpiresAt != nil
	}, waitFor, tick)

	// The remaining time survives the pause.
	entries := h.list(t)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *entries[0].ExpiresAt)
}

func TestDispatcher_FIFORunsOnlyFirst(t *testing.T) {
	h := newHarness(t, func(cfg *config.DaemonConfig) {
		cfg.General.Queue = config.QueueFIFO
	})

	h.notify(t, store.Spec{Summary: "one", Timeout: explicit(5 * time.Second)})
	h.notify(t, store.Spec{Summary: "two", Timeout: explicit(5 * time.Second)})

	running := 0
	for _, e := range h.list(t) {
		if e.ExpiresAt != nil {
			running++
		}
	}
	assert.Equal(t, 1, running)

	// When the first expires the next one starts.
	h.clock.Advance(5 * time.Second)
	entries := h.list(t)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ExpiresAt)
	assert.Equal(t, h.clock.Now().Add(5*time.Second), *entries[0].ExpiresAt)
}

func TestDispatcher_InhibitHoldsNonCritical(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	st, err := h.d.SetInhibited(ctx, true, "test")
	require.NoError(t, err)
	assert.True(t, st.Inhibited)
	require.Len(t, h.emitter.States(), 1)

	normal := model.DefaultHints()
	critical := model.DefaultHints()
	critical.Urgency = model.UrgencyCritical

	h.notify(t, store.Spec{Summary: "quiet", Hints: normal, Timeout: explicit(time.Second)})
	h.notify(t, store.Spec{Summary: "loud", Hints: critical})

	st = h.status(t)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Visible)
	assert.Equal(t, 1, st.Waiting)

	// Waiting entries do not expire.
	h.clock.Advance(time.Minute)
	assert.Equal(t, 2, h.status(t).Active)

	_, err = h.d.SetInhibited(ctx, false, "test")
	require.NoError(t, err)
	st = h.status(t)
	assert.Equal(t, 2, st.Visible)
	assert.Zero(t, st.Waiting)

	// Setting the same value again is not a change.
	_, err = h.d.SetInhibited(ctx, false, "test")
	require.NoError(t, err)
	assert.Len(t, h.emitter.States(), 2)
}

func TestDispatcher_ClickDismisses(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{Summary: "click me"})
	require.NotNil(t, h.comp.Current())

	h.comp.Click(20, 20, surface.ButtonLeft)
	require.Eventually(t, func() bool {
		return len(h.list(t)) == 0
	}, waitFor, tick)
	assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonDismissed}}, h.emitter.Closed())
}

func TestDispatcher_KeyboardSelectAndDismiss(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "older"})
	newest := h.notify(t, store.Spec{Summary: "newer"})
	require.NotNil(t, h.comp.Current())

	h.comp.Key("j", false, false, false)
	require.Eventually(t, func() bool {
		for _, e := range h.list(t) {
			if e.Selected {
				return e.ID == newest
			}
		}
		return false
	}, waitFor, tick)

	h.comp.Key("Escape", false, false, false)
	require.Eventually(t, func() bool {
		return len(h.list(t)) == 1
	}, waitFor, tick)
	assert.Equal(t, []closedSignal{{ID: newest, Reason: model.CloseReasonDismissed}}, h.emitter.Closed())
}

func TestDispatcher_PresentsFrames(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "draw me"})
	target := h.comp.Current()
	require.NotNil(t, target)
	require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)

	img := target.LastFrame()
	require.NotNil(t, img)
	w, hgt := target.Size()
	assert.Equal(t, w, img.Bounds().Dx())
	assert.Equal(t, hgt, img.Bounds().Dy())

	// Closing the last notification releases the target.
	_, err := h.d.DismissAll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, h.comp.Current())
}

func TestDispatcher_SurfaceLostOnceRecovers(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "first"})
	target := h.comp.Current()
	require.NotNil(t, target)
	require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)

	target.LoseSurface(1)
	h.notify(t, store.Spec{Summary: "second"})
	require.Eventually(t, func() bool { return target.Frames() >= 2 }, waitFor, tick)

	select {
	case err := <-h.errCh:
		t.Fatalf("dispatcher exited: %v", err)
	default:
	}
	assert.Equal(t, 1, h.comp.Created())
	assert.Len(t, h.list(t), 2)
}

func TestDispatcher_SurfaceLostTwiceReplacesTarget(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{Summary: "first"})
	target := h.comp.Current()
	require.NotNil(t, target)
	require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)

	target.LoseSurface(2)
	h.notify(t, store.Spec{ReplacesID: id, Summary: "fresh"})

	require.Eventually(t, func() bool {
		cur := h.comp.Current()
		return cur != nil && cur != target && cur.Frames() >= 1
	}, waitFor, tick)
	select {
	case err := <-h.errCh:
		t.Fatalf("dispatcher exited: %v", err)
	default:
	}
	assert.Equal(t, 2, h.comp.Created())
	assert.True(t, target.Destroyed())
}

func TestDispatcher_TargetDestroyedWithoutClosedEvent(t *testing.T) {
	tests := []struct {
		name string
		next func(first uint32) store.Spec
	}{
		{
			// Different bounds: the resize hits the dead target.
			name: "new notification",
			next: func(uint32) store.Spec { return store.Spec{Summary: "second"} },
		},
		{
			// Same bounds: only the present hits the dead target.
			name: "replacement",
			next: func(first uint32) store.Spec { return store.Spec{ReplacesID: first, Summary: "fixed"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)

			first := h.notify(t, store.Spec{Summary: "first"})
			target := h.comp.Current()
			require.NotNil(t, target)
			require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)

			target.Destroy()
			h.notify(t, tt.next(first))

			require.Eventually(t, func() bool {
				cur := h.comp.Current()
				return cur != nil && cur != target && cur.Frames() >= 1
			}, waitFor, tick)
			select {
			case err := <-h.errCh:
				t.Fatalf("dispatcher exited: %v", err)
			default:
			}
			assert.Equal(t, 2, h.comp.Created())
			assert.NotEmpty(t, h.list(t))
		})
	}
}

func TestDispatcher_ReplacementLostIsFatal(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{Summary: "first"})
	target := h.comp.Current()
	require.NotNil(t, target)
	require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)

	target.LoseSurface(2)
	h.comp.LoseNewTargets(2)
	_, _ = h.d.Notify(context.Background(), store.Spec{AppName: "test", ReplacesID: id, Summary: "fresh"})

	select {
	case err := <-h.errCh:
		assert.ErrorIs(t, err, render.ErrSurfaceFatal)
	case <-time.After(waitFor):
		t.Fatal("dispatcher did not exit")
	}
	assert.Equal(t, 2, h.comp.Created())

	_, err := h.d.Status(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func groupByApp(cfg *config.DaemonConfig) {
	cfg.Behavior.GroupBy = config.GroupByApp
	cfg.Behavior.ReplaceSameGroup = true
}

func TestDispatcher_GroupMergeClosesDisplacedAfterRedraw(t *testing.T) {
	h := newHarness(t, groupByApp)

	first := h.notify(t, store.Spec{AppName: "chat", Summary: "one"})
	target := h.comp.Current()
	require.NotNil(t, target)
	require.Eventually(t, func() bool { return target.Frames() >= 1 }, waitFor, tick)
	before := target.Frames()

	var framesAtClose atomic.Int64
	framesAtClose.Store(-1)
	h.emitter.OnClosed(func(sig closedSignal) {
		if sig.ID == first {
			framesAtClose.Store(int64(target.Frames()))
		}
	})

	second := h.notify(t, store.Spec{AppName: "chat", Summary: "two"})
	require.NotEqual(t, first, second)

	require.Eventually(t, func() bool { return len(h.emitter.Closed()) == 1 }, waitFor, tick)
	assert.Equal(t, []closedSignal{{ID: first, Reason: model.ReasonReplaced.CloseReason()}}, h.emitter.Closed())
	// The displaced entry closes only after the merged frame reached the target.
	assert.Greater(t, framesAtClose.Load(), int64(before))

	entries := h.list(t)
	require.Len(t, entries, 1)
	assert.Equal(t, second, entries[0].ID)
	assert.Equal(t, "two", entries[0].Summary)
}

func TestDispatcher_GroupMergeWithoutTargetClosesDisplaced(t *testing.T) {
	h := newHarness(t, groupByApp)
	h.comp.SetReject(true)

	first := h.notify(t, store.Spec{AppName: "chat", Summary: "one"})
	h.notify(t, store.Spec{AppName: "chat", Summary: "two"})

	require.Eventually(t, func() bool { return len(h.emitter.Closed()) == 1 }, waitFor, tick)
	assert.Equal(t, first, h.emitter.Closed()[0].ID)
	assert.Zero(t, h.comp.Created())
	assert.Len(t, h.list(t), 1)
}

func TestDispatcher_ConfigReload(t *testing.T) {
	h := newHarness(t, nil)

	h.notify(t, store.Spec{Summary: "a"})
	h.notify(t, store.Spec{Summary: "b"})
	require.Equal(t, 2, h.status(t).Visible)

	cfg := config.DefaultDaemonConfig()
	cfg.Animation.FadeIn = 0
	cfg.Audio.Enabled = false
	cfg.General.MaxVisible = 1
	h.d.PostConfig(cfg)

	require.Eventually(t, func() bool {
		return h.status(t).Visible == 1
	}, waitFor, tick)

	// The reload is announced with an internal notification.
	var internal bool
	for _, e := range h.list(t) {
		if e.AppName == internalAppName {
			internal = true
		}
	}
	assert.True(t, internal)
	st := h.status(t)
	assert.Equal(t, st.Active-1, st.Hidden)
}

func TestDispatcher_MuteAndPersistedState(t *testing.T) {
	path := t.TempDir() + "/state.json"
	st := history.DefaultState()
	st.SetInhibited(true, "previous run")
	require.NoError(t, history.SaveState(path, st))

	cfg := config.DefaultDaemonConfig()
	cfg.Animation.FadeIn = 0
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := surface.NewEventQueue()
	events.Start(ctx)
	defer events.Stop()

	d, err := New(Options{
		Config:     config.NewHolder("", cfg),
		Compositor: headless.New(events, layout.DefaultOutput),
		Events:     events.C(),
		Clock:      newFakeClock(),
		StatePath:  path,
	})
	require.NoError(t, err)
	go func() { _ = d.Run(ctx) }()

	status, err := d.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Inhibited)
	assert.False(t, status.Muted)

	status, err = d.SetMuted(ctx, true, "test")
	require.NoError(t, err)
	assert.True(t, status.Muted)

	// The write happens off the loop.
	var saved *history.State
	require.Eventually(t, func() bool {
		saved, err = history.LoadState(path)
		return err == nil && saved.Muted
	}, waitFor, tick)
	assert.True(t, saved.Inhibited)
	require.NotNil(t, saved.LastMute)
	assert.Equal(t, "test", saved.LastMute.Source)

	// A change written by another process is picked up by SyncState.
	saved.SetInhibited(false, "other")
	require.NoError(t, history.SaveState(path, saved))
	require.NoError(t, d.SyncState(ctx))
	status, err = d.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Inhibited)
}

func TestDispatcher_ReloadReadsFile(t *testing.T) {
	path := t.TempDir() + "/config.toml"
	cfg := config.DefaultDaemonConfig()
	cfg.Animation.FadeIn = 0
	cfg.Audio.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := surface.NewEventQueue()
	events.Start(ctx)
	defer events.Stop()

	d, err := New(Options{
		Config:     config.NewHolder(path, cfg),
		Compositor: headless.New(events, layout.DefaultOutput),
		Events:     events.C(),
		Clock:      newFakeClock(),
	})
	require.NoError(t, err)
	go func() { _ = d.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("[general]\nmax_visible = 1\n"), 0o600))
	require.NoError(t, d.Reload(ctx))
	assert.Equal(t, 1, d.holder.Get().General.MaxVisible)

	require.NoError(t, os.WriteFile(path, []byte("[general\n"), 0o600))
	assert.Error(t, d.Reload(ctx))
	// The previous configuration stays active.
	assert.Equal(t, 1, d.holder.Get().General.MaxVisible)
}

func TestStateWriter_KeepsNewest(t *testing.T) {
	path := t.TempDir() + "/state.json"
	w := newStateWriter(path, nil)

	// Nothing drains the queue yet, so earlier snapshots are replaced.
	for i := range 5 {
		st := *history.DefaultState()
		st.SetMuted(i%2 == 0, fmt.Sprintf("step %d", i))
		w.Save(st)
	}
	assert.True(t, w.Pending())

	go w.run()
	w.Close()
	assert.False(t, w.Pending())

	saved, err := history.LoadState(path)
	require.NoError(t, err)
	assert.True(t, saved.Muted)
	require.NotNil(t, saved.LastMute)
	assert.Equal(t, "step 4", saved.LastMute.Source)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	h := newHarness(t, nil)
	h.notify(t, store.Spec{Summary: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.d.List(ctx)
	// Either the loop answered first or the context won; never a hang.
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

// localRect fetches a laid-out rectangle of a visible entry in target
// coordinates.
func (h *harness) localRect(t *testing.T, id uint32, pick func(it *layout.Item) model.Rect) model.Rect {
	t.Helper()
	r, err := call(context.Background(), h.d, func() (model.Rect, error) {
		it, ok := h.d.frame.Item(id)
		if !ok {
			return model.Rect{}, fmt.Errorf("entry %d not laid out", id)
		}
		r := pick(it)
		r.X -= h.d.frame.Bounds.X
		r.Y -= h.d.frame.Bounds.Y
		return r, nil
	})
	require.NoError(t, err)
	require.False(t, r.Empty())
	return r
}

func center(r model.Rect) (float64, float64) {
	return float64(r.X) + float64(r.W)/2, float64(r.Y) + float64(r.H)/2
}

func TestDispatcher_DismissButtonCloses(t *testing.T) {
	h := newHarness(t, func(cfg *config.DaemonConfig) {
		// Body clicks would run the default action instead of closing.
		cfg.Mouse.Left = string(config.MouseActionDoAction)
	})

	id := h.notify(t, store.Spec{Summary: "close me"})
	require.NotNil(t, h.comp.Current())

	x, y := center(h.localRect(t, id, func(it *layout.Item) model.Rect { return it.Dismiss }))
	h.comp.Click(x, y, surface.ButtonLeft)
	require.Eventually(t, func() bool { return len(h.list(t)) == 0 }, waitFor, tick)
	assert.Equal(t, []closedSignal{{ID: id, Reason: model.CloseReasonDismissed}}, h.emitter.Closed())
	assert.Empty(t, h.emitter.Actions())
}

func TestDispatcher_LinkClickOpens(t *testing.T) {
	h := newHarness(t, nil)

	id := h.notify(t, store.Spec{
		Summary: "release",
		Body:    `see <a href="https://example.com/notes">notes</a>`,
		Links:   []model.Link{{Href: "https://example.com/notes", Text: "notes"}},
	})
	require.NotNil(t, h.comp.Current())

	x, y := center(h.localRect(t, id, func(it *layout.Item) model.Rect {
		if len(it.Links) == 0 {
			return model.Rect{}
		}
		return it.Links[0].Rect
	}))
	h.comp.Click(x, y, surface.ButtonLeft)
	require.Eventually(t, func() bool { return len(h.opener.Opened()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"https://example.com/notes"}, h.opener.Opened())

	// Opening a link leaves the notification up.
	assert.Len(t, h.list(t), 1)
	assert.Empty(t, h.emitter.Closed())
}

func TestDispatcher_LinksDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.DaemonConfig) {
		cfg.Behavior.OpenLinks = false
	})

	id := h.notify(t, store.Spec{
		Summary: "release",
		Links:   []model.Link{{Href: "https://example.com/notes"}},
	})
	require.NotNil(t, h.comp.Current())

	n, err := call(context.Background(), h.d, func() (int, error) {
		it, ok := h.d.frame.Item(id)
		if !ok {
			return 0, fmt.Errorf("entry %d not laid out", id)
		}
		return len(it.Links), nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_IdlePausesExpiry(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.notify(t, store.Spec{Summary: "while away", Timeout: explicit(5 * time.Second)})
	h.clock.Advance(2 * time.Second)

	st, err := h.d.SetIdle(ctx, true)
	require.NoError(t, err)
	assert.True(t, st.Idle)
	require.Eventually(t, func() bool {
		entries := h.list(t)
		return len(entries) == 1 && entries[0].ExpiresAt == nil
	}, waitFor, tick)

	h.clock.Advance(time.Minute)
	assert.Len(t, h.list(t), 1)

	st, err = h.d.SetIdle(ctx, false)
	require.NoError(t, err)
	assert.False(t, st.Idle)
	require.Eventually(t, func() bool {
		entries := h.list(t)
		return len(entries) == 1 && entries[0].ExpiresAt != nil
	}, waitFor, tick)

	// Only the time left before going idle remains.
	entries := h.list(t)
	assert.Equal(t, h.clock.Now().Add(3*time.Second), *entries[0].ExpiresAt)

	// Each transition is announced once.
	_, err = h.d.SetIdle(ctx, false)
	require.NoError(t, err)
	states := h.emitter.States()
	require.Len(t, states, 2)
	assert.True(t, states[0].Idle)
	assert.False(t, states[1].Idle)
}

func TestDispatcher_IdleResumeKeepsFIFO(t *testing.T) {
	h := newHarness(t, func(cfg *config.DaemonConfig) {
		cfg.General.Queue = config.QueueFIFO
	})
	ctx := context.Background()

	h.notify(t, store.Spec{Summary: "one", Timeout: explicit(5 * time.Second)})
	h.notify(t, store.Spec{Summary: "two", Timeout: explicit(5 * time.Second)})

	running := func() int {
		n := 0
		for _, e := range h.list(t) {
			if e.ExpiresAt != nil {
				n++
			}
		}
		return n
	}

	_, err := h.d.SetIdle(ctx, true)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return running() == 0 }, waitFor, tick)

	_, err = h.d.SetIdle(ctx, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return running() == 1 }, waitFor, tick)
}

func TestDispatcher_IdleIgnoredWhenDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.DaemonConfig) {
		cfg.Behavior.PauseOnIdle = false
	})

	h.notify(t, store.Spec{Summary: "keeps ticking", Timeout: explicit(5 * time.Second)})
	st, err := h.d.SetIdle(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, st.Idle)

	h.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return len(h.list(t)) == 0 }, waitFor, tick)
}
