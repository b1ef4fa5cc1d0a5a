package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "table", cfg.Output.Format)
	assert.Equal(t, 50, cfg.Output.BodyWidth)
	assert.Equal(t, 20, cfg.History.Limit)
	assert.True(t, cfg.Watch.ShowHelp)
}

func TestLoadConfig_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glintctl.toml")

	content := `
[output]
format = "yaml"
body_width = 80

[history]
limit = 5

[watch]
show_help = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml", cfg.Output.Format)
	assert.Equal(t, 80, cfg.Output.BodyWidth)
	assert.Equal(t, 5, cfg.History.Limit)
	assert.False(t, cfg.Watch.ShowHelp)
}

func TestLoadConfig_RejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glintctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("[output]\nformat = \"xml\"\n"), 0644))

	_, err := LoadConfig(path)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, path, invalid.Path)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "glintctl.toml")

	cfg := DefaultConfig()
	cfg.History.Limit = 99
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 99, loaded.History.Limit)
}

func TestDefaultDaemonConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultDaemonConfig().Validate())
}

func TestParseDaemonConfig(t *testing.T) {
	content := `
[general]
anchor = "bottom-center"
max_visible = 3
stacking = "oldest-first"
queue = "fifo"

[layout]
width = 420
margin = { top = 20, right = 5, bottom = 20, left = 5 }

[timeouts]
low = "3s"
normal = "7500"
critical = "0"

[behavior]
group_by = "app"
replace_same_group = true

[styles.critical]
background = "#ff0000"
border_radius = [1, 2, 3, 4]
`
	cfg, err := ParseDaemonConfig("test.toml", []byte(content))
	require.NoError(t, err)

	assert.Equal(t, "bottom-center", cfg.General.Anchor)
	assert.Equal(t, 3, cfg.General.MaxVisible)
	assert.Equal(t, StackingOldestFirst, cfg.General.Stacking)
	assert.Equal(t, QueueFIFO, cfg.General.Queue)
	assert.Equal(t, 420, cfg.Layout.Width)
	assert.Equal(t, Margins{Top: 20, Right: 5, Bottom: 20, Left: 5}, cfg.Layout.Margin)
	assert.Equal(t, 3*time.Second, cfg.TimeoutForUrgency(model.UrgencyLow))
	assert.Equal(t, 7500*time.Millisecond, cfg.TimeoutForUrgency(model.UrgencyNormal))
	assert.Equal(t, time.Duration(0), cfg.TimeoutForUrgency(model.UrgencyCritical))
	assert.Equal(t, GroupByApp, cfg.Behavior.GroupBy)
	assert.True(t, cfg.Behavior.ReplaceSameGroup)

	critical := cfg.StyleForUrgency(model.UrgencyCritical)
	assert.Equal(t, "#ff0000", critical.Background)
	assert.Equal(t, [4]float64{1, 2, 3, 4}, critical.Radii())

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultDaemonConfig().Styles.Normal, cfg.Styles.Normal)
	assert.Equal(t, DefaultDaemonConfig().Mouse, cfg.Mouse)
}

func TestParseDaemonConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[general\nanchor = "},
		{"anchor", "[general]\nanchor = \"middle-ish\""},
		{"max visible", "[general]\nmax_visible = 0"},
		{"queue", "[general]\nqueue = \"lifo\""},
		{"counter format", "[general]\ncounter_format = \"more\""},
		{"color", "[styles.low]\nbackground = \"red\""},
		{"radius count", "[styles.low]\nborder_radius = [1, 2]"},
		{"mouse", "[mouse]\nleft = \"explode\""},
		{"key chord", "[keyboard]\ndismiss = \"hyper+x\""},
		{"duration", "[timeouts]\nlow = \"soon\""},
		{"volume", "[audio]\nvolume = 101"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDaemonConfig("bad.toml", []byte(tt.content))
			require.Error(t, err)

			var invalid *InvalidError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, "bad.toml", invalid.Path)
		})
	}
}

func TestLoadDaemonConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadDaemonConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemonConfig(), cfg)
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"2500", 2500 * time.Millisecond, false},
		{"0", 0, false},
		{"later", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestIsHexColor(t *testing.T) {
	for _, c := range []string{"#fff", "#1e1e2e", "#1e1e2eff"} {
		assert.True(t, IsHexColor(c), c)
	}
	for _, c := range []string{"fff", "#ff", "#12345", "#gggggg", ""} {
		assert.False(t, IsHexColor(c), c)
	}
}

func TestKeyboardConfig_Command(t *testing.T) {
	kb := DefaultDaemonConfig().Keyboard

	assert.Equal(t, KeyDismiss, kb.Command("Escape", false, false, false))
	assert.Equal(t, KeyDismissAll, kb.Command("Escape", true, false, false))
	assert.Equal(t, KeyInvoke, kb.Command("Return", false, false, false))
	assert.Equal(t, KeyNext, kb.Command("j", false, false, false))
	assert.Equal(t, KeyPrev, kb.Command("k", false, false, false))
	assert.Equal(t, KeyNone, kb.Command("k", false, true, false))
}

func TestParseKeyChord(t *testing.T) {
	kc, err := ParseKeyChord("ctrl+shift+Return")
	require.NoError(t, err)
	assert.Equal(t, KeyChord{Key: "Return", Shift: true, Ctrl: true}, kc)

	_, err = ParseKeyChord("shift+")
	assert.Error(t, err)
}

func TestHolder_StoreSwapsWholeSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glintd.toml")
	h := NewHolder(path, nil)
	first := h.Get()

	require.NoError(t, os.WriteFile(path, []byte("[general]\nmax_visible = 2\n"), 0600))
	next, err := h.Load()
	require.NoError(t, err)

	// Load alone does not publish.
	assert.Same(t, first, h.Get())

	prev := h.Store(next)
	assert.Same(t, first, prev)
	assert.Equal(t, 2, h.Get().General.MaxVisible)
	assert.Equal(t, 5, first.General.MaxVisible)
}

func TestHolder_FailedLoadKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glintd.toml")
	h := NewHolder(path, nil)
	first := h.Get()

	require.NoError(t, os.WriteFile(path, []byte("[general]\nanchor = \"nowhere\"\n"), 0600))
	_, err := h.Load()
	require.Error(t, err)
	assert.Same(t, first, h.Get())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "sounds", "a.wav"), ExpandPath("~/sounds/a.wav"))
	assert.Equal(t, "/abs/a.wav", ExpandPath("/abs/a.wav"))
}
