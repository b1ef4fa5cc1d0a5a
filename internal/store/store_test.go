package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

func testPolicy() Policy {
	return PolicyFromConfig(config.DefaultDaemonConfig())
}

func testStore(p Policy) *Store {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	return New(p, func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
}

func spec(app, summary string) Spec {
	return Spec{AppName: app, Summary: summary, Hints: model.DefaultHints()}
}

func TestStore_UpsertAssignsIncreasingIDs(t *testing.T) {
	s := testStore(testPolicy())

	r1, err := s.Upsert(spec("a", "one"))
	require.NoError(t, err)
	r2, err := s.Upsert(spec("a", "two"))
	require.NoError(t, err)

	assert.Equal(t, uint32(1), r1.ID)
	assert.Equal(t, uint32(2), r2.ID)
	assert.Equal(t, OutcomeInserted, r2.Outcome)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.TakeDirty())
	assert.False(t, s.TakeDirty())
}

func TestStore_StackingOrder(t *testing.T) {
	tests := []struct {
		stacking string
		want     []uint32
	}{
		{config.StackingNewestFirst, []uint32{3, 2, 1}},
		{config.StackingOldestFirst, []uint32{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.stacking, func(t *testing.T) {
			p := testPolicy()
			p.Stacking = tt.stacking
			s := testStore(p)
			for _, sum := range []string{"a", "b", "c"} {
				_, err := s.Upsert(spec("app", sum))
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.IDs())
		})
	}
}

func TestStore_ReplacesIDKeepsIdentityAndPosition(t *testing.T) {
	s := testStore(testPolicy())
	first, _ := s.Upsert(spec("a", "one"))
	_, _ = s.Upsert(spec("b", "two"))
	_, _ = s.Upsert(spec("c", "three"))
	before, _ := s.Get(first.ID)
	orderBefore := s.IDs()

	next := spec("a", "one, updated")
	next.ReplacesID = first.ID
	res, err := s.Upsert(next)
	require.NoError(t, err)

	assert.Equal(t, first.ID, res.ID)
	assert.Equal(t, OutcomeReplaced, res.Outcome)
	assert.Equal(t, orderBefore, s.IDs())

	after, ok := s.Get(first.ID)
	require.True(t, ok)
	assert.Equal(t, "one, updated", after.Summary)
	assert.Equal(t, before.Seq, after.Seq)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))
}

func TestStore_ReplacesIDNotLiveAllocatesNewID(t *testing.T) {
	s := testStore(testPolicy())
	next := spec("a", "orphan")
	next.ReplacesID = 42

	res, err := s.Upsert(next)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), res.ID)
	assert.Equal(t, OutcomeInserted, res.Outcome)
}

func TestStore_ReplaceBumpsIconGeneration(t *testing.T) {
	s := testStore(testPolicy())
	first := spec("a", "one")
	first.Icon = "dialog-information"
	res, _ := s.Upsert(first)
	n, _ := s.Get(res.ID)
	assert.Equal(t, uint64(1), n.IconGen)

	same := first
	same.ReplacesID = res.ID
	same.Summary = "still one"
	_, _ = s.Upsert(same)
	n, _ = s.Get(res.ID)
	assert.Equal(t, uint64(1), n.IconGen)

	changed := same
	changed.Icon = "dialog-warning"
	_, _ = s.Upsert(changed)
	n, _ = s.Get(res.ID)
	assert.Equal(t, uint64(2), n.IconGen)
}

func TestStore_UniqueIDsAcrossUpsertRemove(t *testing.T) {
	s := testStore(testPolicy())
	seen := map[uint32]bool{}

	for i := 0; i < 50; i++ {
		res, err := s.Upsert(spec("app", string(rune('a'+i%26))+string(rune('A'+i/26))))
		require.NoError(t, err)
		assert.False(t, seen[res.ID], "id %d reused", res.ID)
		seen[res.ID] = true
		if i%3 == 0 {
			_, ok := s.Remove(res.ID, model.ReasonUser)
			assert.True(t, ok)
		}
	}

	live := map[uint32]bool{}
	for _, id := range s.IDs() {
		assert.False(t, live[id])
		live[id] = true
	}
}

func TestStore_AllocateIDSkipsZeroAndLiveOnWrap(t *testing.T) {
	s := testStore(testPolicy())
	r1, _ := s.Upsert(spec("a", "one"))
	require.Equal(t, uint32(1), r1.ID)

	s.lastID = ^uint32(0) - 1
	r2, _ := s.Upsert(spec("a", "two"))
	assert.Equal(t, ^uint32(0), r2.ID)

	// Wraps past 0 and the still-live 1.
	r3, _ := s.Upsert(spec("a", "three"))
	assert.Equal(t, uint32(2), r3.ID)
}

func TestStore_Malformed(t *testing.T) {
	s := testStore(testPolicy())

	res, err := s.Upsert(Spec{AppName: "a", Hints: model.DefaultHints()})
	require.ErrorIs(t, err, ErrMalformed)
	assert.NotZero(t, res.ID)
	assert.Equal(t, 0, s.Len())

	// Icon alone is enough.
	_, err = s.Upsert(Spec{AppName: "a", Icon: "firefox", Hints: model.DefaultHints()})
	assert.NoError(t, err)
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	s := testStore(testPolicy())
	res, _ := s.Upsert(spec("a", "one"))
	s.TakeDirty()

	ev, ok := s.Remove(res.ID, model.ReasonTimeout)
	require.True(t, ok)
	assert.Equal(t, res.ID, ev.ID)
	assert.Equal(t, model.ReasonTimeout, ev.Reason)
	assert.Equal(t, "one", ev.Notification.Summary)
	assert.True(t, s.TakeDirty())

	_, ok = s.Remove(res.ID, model.ReasonTimeout)
	assert.False(t, ok)
	assert.False(t, s.TakeDirty())
}

func TestStore_RemoveAll(t *testing.T) {
	s := testStore(testPolicy())
	_, _ = s.Upsert(spec("a", "one"))
	_, _ = s.Upsert(spec("b", "two"))

	events := s.RemoveAll(model.ReasonUser)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(2), events[0].ID)
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.RemoveAll(model.ReasonUser))
}

func TestStore_InvokeAction(t *testing.T) {
	withActions := func(resident bool) Spec {
		sp := spec("a", "one")
		sp.Actions = []model.Action{{Key: "default", Label: "Open"}, {Key: "reply", Label: "Reply"}}
		sp.Hints.Resident = resident
		return sp
	}

	tests := []struct {
		name      string
		resident  bool
		key       string
		wantClose bool
		wantErr   error
	}{
		{"default closes", false, "default", true, nil},
		{"other action stays", false, "reply", false, nil},
		{"resident never closes", true, "default", false, nil},
		{"unknown key", false, "delete", false, ErrUnknownAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(testPolicy())
			res, _ := s.Upsert(withActions(tt.resident))

			got, err := s.InvokeAction(res.ID, tt.key)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantClose, got.Close)
			assert.True(t, s.Has(res.ID), "invoke must not remove")
		})
	}

	s := testStore(testPolicy())
	_, err := s.InvokeAction(99, "default")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_StackDuplicates(t *testing.T) {
	s := testStore(testPolicy())
	first, _ := s.Upsert(spec("a", "same"))

	dup, err := s.Upsert(spec("a", "same"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStacked, dup.Outcome)
	assert.Equal(t, first.ID, dup.Target)
	assert.NotEqual(t, first.ID, dup.ID)
	assert.Equal(t, 1, s.Len())

	n, _ := s.Get(first.ID)
	assert.Equal(t, 2, n.StackCount)

	p := testPolicy()
	p.StackDuplicates = false
	s.SetPolicy(p)
	_, _ = s.Upsert(spec("a", "same"))
	assert.Equal(t, 2, s.Len())
}

func TestStore_GroupMerge(t *testing.T) {
	p := testPolicy()
	p.GroupBy = config.GroupByApp
	p.ReplaceSameGroup = true
	s := testStore(p)

	a1, _ := s.Upsert(spec("chat", "hello"))
	b1, _ := s.Upsert(spec("mail", "inbox"))
	order := s.IDs()
	require.Equal(t, []uint32{b1.ID, a1.ID}, order)

	a2, err := s.Upsert(spec("chat", "world"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, a2.Outcome)
	assert.Equal(t, a1.ID, a2.Displaced)
	assert.NotEqual(t, a1.ID, a2.ID)

	// The new entry takes the old slot.
	assert.Equal(t, []uint32{b1.ID, a2.ID}, s.IDs())
	assert.False(t, s.Has(a1.ID))

	require.True(t, s.HasRetired())
	retired := s.FlushRetired()
	require.Len(t, retired, 1)
	assert.Equal(t, a1.ID, retired[0].ID)
	assert.Equal(t, model.ReasonReplaced, retired[0].Reason)
	assert.Nil(t, s.FlushRetired())
}

func TestStore_ExplicitReplaceBeatsGroup(t *testing.T) {
	p := testPolicy()
	p.GroupBy = config.GroupByApp
	p.ReplaceSameGroup = true
	s := testStore(p)

	a1, _ := s.Upsert(spec("chat", "one"))
	a2, _ := s.Upsert(spec("other", "two"))

	next := spec("chat", "updated")
	next.ReplacesID = a2.ID
	res, err := s.Upsert(next)
	require.NoError(t, err)

	assert.Equal(t, a2.ID, res.ID)
	assert.Equal(t, OutcomeReplaced, res.Outcome)
	assert.True(t, s.Has(a1.ID))
	assert.False(t, s.HasRetired())
}

func TestStore_StackTagGroupsOnlyTagged(t *testing.T) {
	p := testPolicy()
	p.GroupBy = config.GroupByStackTag
	p.ReplaceSameGroup = true
	p.StackDuplicates = false
	s := testStore(p)

	vol := func(summary string) Spec {
		sp := spec("mixer", summary)
		sp.Hints.StackTag = "volume"
		return sp
	}

	_, _ = s.Upsert(spec("mixer", "untagged"))
	_, _ = s.Upsert(spec("mixer", "untagged 2"))
	_, _ = s.Upsert(vol("40%"))
	res, _ := s.Upsert(vol("45%"))

	assert.Equal(t, OutcomeMerged, res.Outcome)
	assert.Equal(t, 3, s.Len())
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	s := testStore(testPolicy())
	sp := spec("a", "one")
	sp.Actions = []model.Action{{Key: "k", Label: "K"}}
	res, _ := s.Upsert(sp)

	snap := s.Snapshot()
	snap[0].Actions[0].Label = "changed"
	snap[0].Summary = "changed"

	n, _ := s.Get(res.ID)
	assert.Equal(t, "K", n.Actions[0].Label)
	assert.Equal(t, "one", n.Summary)
}

func TestStore_SanitizesInput(t *testing.T) {
	s := testStore(testPolicy())
	sp := spec("a", "  padded \xff ")
	sp.Hints.Urgency = model.Urgency(9)
	sp.Hints.Progress = 250
	res, _ := s.Upsert(sp)

	n, _ := s.Get(res.ID)
	assert.Equal(t, "padded �", n.Summary)
	assert.Equal(t, model.UrgencyNormal, n.Urgency)
	assert.Equal(t, 100, n.Hints.Progress)
}

func TestStore_SetPhaseAndBounds(t *testing.T) {
	s := testStore(testPolicy())
	res, _ := s.Upsert(spec("a", "one"))
	s.TakeDirty()

	s.SetBounds(res.ID, model.Rect{X: 1, Y: 2, W: 3, H: 4})
	s.SetRemaining(res.ID, 3*time.Second)
	assert.False(t, s.TakeDirty())

	assert.True(t, s.SetPhase(res.ID, model.PhaseVisible))
	assert.False(t, s.SetPhase(res.ID, model.PhaseVisible))
	assert.True(t, s.TakeDirty())

	n, _ := s.Get(res.ID)
	assert.Equal(t, model.Rect{X: 1, Y: 2, W: 3, H: 4}, n.Bounds)
	assert.Equal(t, model.PhaseVisible, n.Phase)
	assert.Equal(t, 3*time.Second, n.Remaining)
}
