package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/model"
)

func closedEvent(id uint32, summary string, reason model.DismissReason) model.ClosedEvent {
	return model.ClosedEvent{
		ID:     id,
		Reason: reason,
		Notification: model.Notification{
			ID:        id,
			AppName:   "test-app",
			Summary:   summary,
			Urgency:   model.UrgencyCritical,
			Hints:     model.DefaultHints(),
			CreatedAt: time.Unix(1700000000, 0),
		},
	}
}

func TestNewEntry(t *testing.T) {
	closed := time.Unix(1700000100, 0)
	e, err := NewEntry(closedEvent(7, "hello", model.ReasonTimeout), closed)
	require.NoError(t, err)

	assert.True(t, e.Valid())
	assert.Equal(t, uint32(7), e.NotificationID)
	assert.Equal(t, "hello", e.Summary)
	assert.Equal(t, "critical", e.UrgencyName)
	assert.Equal(t, "timeout", e.Reason)
	assert.Equal(t, int64(1700000000), e.CreatedAt)
	assert.Equal(t, closed, e.ClosedTime())
}

func TestRecorder_MemoryBounded(t *testing.T) {
	r := NewMemory(3, nil)
	for i := uint32(1); i <= 5; i++ {
		r.Record(closedEvent(i, "n", model.ReasonUser))
	}

	assert.Equal(t, 3, r.Len())
	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, uint32(5), recent[0].NotificationID)
	assert.Equal(t, uint32(3), recent[2].NotificationID)

	assert.Len(t, r.Recent(2), 2)
}

func TestRecorder_SkipsTransient(t *testing.T) {
	r := NewMemory(10, nil)
	ev := closedEvent(1, "n", model.ReasonUser)
	ev.Notification.Hints.Transient = true
	r.Record(ev)

	assert.Equal(t, 0, r.Len())
}

func TestRecorder_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	r, err := Open(path, 10, nil)
	require.NoError(t, err)
	r.Start()
	r.Record(closedEvent(1, "first", model.ReasonTimeout))
	r.Record(closedEvent(2, "second", model.ReasonCall))
	require.NoError(t, r.Stop())

	reopened, err := Open(path, 10, nil)
	require.NoError(t, err)
	defer reopened.Stop()

	recent := reopened.Recent(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "second", recent[0].Summary)
	assert.Equal(t, "call", recent[0].Reason)
}

func TestRecorder_ClearTruncatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	r, err := Open(path, 10, nil)
	require.NoError(t, err)
	r.Start()
	r.Record(closedEvent(1, "first", model.ReasonTimeout))
	r.Clear()
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.Stop())

	reopened, err := Open(path, 10, nil)
	require.NoError(t, err)
	defer reopened.Stop()
	assert.Equal(t, 0, reopened.Len())
}

func TestRecorder_CompactsOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	r, err := Open(path, 2, nil)
	require.NoError(t, err)
	r.Start()
	for i := uint32(1); i <= 4; i++ {
		r.Record(closedEvent(i, "n", model.ReasonUser))
	}
	require.NoError(t, r.Stop())

	f, err := OpenJSONL(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := f.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint32(3), entries[0].NotificationID)
}

func TestJSONLFile_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")

	f, err := OpenJSONL(path)
	require.NoError(t, err)
	e, err := NewEntry(closedEvent(1, "ok", model.ReasonUser), time.Now())
	require.NoError(t, err)
	require.NoError(t, f.Append(e))
	require.NoError(t, f.Close())

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = fh.WriteString("{not json\n{\"id\":\"nope\"}\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	f, err = OpenJSONL(path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := f.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0].Summary)
}

func TestJSONLFile_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"glint_history_version\":99,\"created_at\":0}\n"), 0600))

	f, err := OpenJSONL(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Load()
	assert.Error(t, err)
}

func TestState_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glint", "state.json")

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.False(t, st.Inhibited)

	st.SetInhibited(true, "glintctl")
	st.SetMuted(true, "glintctl")
	require.NoError(t, SaveState(path, st))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.True(t, loaded.Inhibited)
	assert.True(t, loaded.Muted)
	require.NotNil(t, loaded.LastInhibit)
	assert.Equal(t, "glintctl", loaded.LastInhibit.Source)
}

func TestState_CorruptedFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{"), 0600))

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultState(), st)
}
