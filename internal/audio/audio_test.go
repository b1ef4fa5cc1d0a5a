package audio

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

type fakeOutput struct {
	mu    sync.Mutex
	inits int
	plays int
}

func (o *fakeOutput) Init(beep.SampleRate, int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inits++
	return nil
}

func (o *fakeOutput) Play(beep.Streamer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plays++
}

func (o *fakeOutput) Close() {}

func (o *fakeOutput) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inits, o.plays
}

func writeWAV(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Silence(800), format))
}

func TestPlayer_PlayCachesDecodedSound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ding.wav")
	writeWAV(t, path)

	out := &fakeOutput{}
	p := NewPlayerWithOutput(out, nil)
	p.SetVolume(0.5)

	require.NoError(t, p.Play(path))
	require.NoError(t, p.Play(path))
	inits, plays := out.counts()
	assert.Equal(t, 1, inits)
	assert.Equal(t, 2, plays)
	assert.True(t, p.Cached(path))

	p.Invalidate(path)
	assert.False(t, p.Cached(path))

	assert.Error(t, p.Play(filepath.Join(dir, "ding.aiff")))
	assert.Error(t, p.Play(filepath.Join(dir, "missing.wav")))
	assert.NoError(t, p.Play(""))
}

func TestPlayer_SetVolumeClamps(t *testing.T) {
	p := NewPlayerWithOutput(&fakeOutput{}, nil)
	p.SetVolume(3)
	assert.Equal(t, 1.0, p.Volume())
	p.SetVolume(-1)
	assert.Equal(t, 0.0, p.Volume())
	assert.Equal(t, -1.0, volumeToExponent(0.5))
}

func TestManager_SoundFor(t *testing.T) {
	dir := t.TempDir()
	normal := filepath.Join(dir, "normal.wav")
	writeWAV(t, normal)
	themed := filepath.Join(dir, "sounds", "freedesktop", "stereo", "message-new-instant.oga")
	require.NoError(t, os.MkdirAll(filepath.Dir(themed), 0o755))
	require.NoError(t, os.WriteFile(themed, []byte("x"), 0o644))

	cfg := config.DefaultDaemonConfig()
	cfg.Audio.Sounds.Normal = normal
	cfg.Audio.Sounds.Critical = filepath.Join(dir, "missing.wav")

	m := NewManagerWithPlayer(cfg, NewPlayerWithOutput(&fakeOutput{}, nil), nil)
	m.SetSoundDirs([]string{dir})

	hints := func(mod func(h *model.Hints)) model.Hints {
		h := model.DefaultHints()
		mod(&h)
		return h
	}

	tests := []struct {
		name string
		n    model.Notification
		want string
	}{
		{"urgency sound", model.Notification{Urgency: model.UrgencyNormal}, normal},
		{"missing urgency file", model.Notification{Urgency: model.UrgencyCritical}, ""},
		{"unconfigured urgency", model.Notification{Urgency: model.UrgencyLow}, ""},
		{"suppress-sound", model.Notification{Urgency: model.UrgencyNormal, Hints: hints(func(h *model.Hints) { h.SuppressSound = true })}, ""},
		{"sound-file", model.Notification{Hints: hints(func(h *model.Hints) { h.SoundFile = "/tmp/x.wav" })}, "/tmp/x.wav"},
		{"sound-name", model.Notification{Hints: hints(func(h *model.Hints) { h.SoundName = "message-new-instant" })}, themed},
		{"unknown sound-name falls back", model.Notification{Urgency: model.UrgencyNormal, Hints: hints(func(h *model.Hints) { h.SoundName = "nope" })}, normal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.SoundFor(tt.n))
		})
	}

	disabled := config.DefaultDaemonConfig()
	disabled.Audio.Enabled = false
	disabled.Audio.Sounds.Normal = normal
	m.UpdateConfig(disabled)
	assert.Empty(t, m.SoundFor(model.Notification{Urgency: model.UrgencyNormal}))
}

func TestManager_PlayRunsInBackground(t *testing.T) {
	dir := t.TempDir()
	normal := filepath.Join(dir, "normal.wav")
	writeWAV(t, normal)

	cfg := config.DefaultDaemonConfig()
	cfg.Audio.Sounds.Normal = normal
	out := &fakeOutput{}
	m := NewManagerWithPlayer(cfg, NewPlayerWithOutput(out, nil), nil)

	n := model.Notification{Urgency: model.UrgencyNormal}
	assert.False(t, m.Play(n), "not started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	assert.True(t, m.Play(n))
	assert.Eventually(t, func() bool {
		_, plays := out.counts()
		return plays == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, m.Play(model.Notification{Urgency: model.UrgencyLow}))
}
