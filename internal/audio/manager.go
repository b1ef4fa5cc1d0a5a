package audio

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

var soundThemeExtensions = []string{".oga", ".ogg", ".wav"}

// Manager picks the sound for a notification and plays it on a background
// goroutine. Play never blocks the caller.
type Manager struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	player  *Player
	watcher *Watcher

	enabled   bool
	sounds    map[model.Urgency]string
	soundDirs []string

	queue   chan string
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewManager creates a manager on the system speaker.
func NewManager(cfg *config.DaemonConfig, logger *slog.Logger) *Manager {
	return NewManagerWithPlayer(cfg, NewPlayer(logger), logger)
}

// NewManagerWithPlayer creates a manager with a given player.
func NewManagerWithPlayer(cfg *config.DaemonConfig, player *Player, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:    logger,
		player:    player,
		watcher:   NewWatcher(player, logger),
		sounds:    make(map[model.Urgency]string),
		soundDirs: append([]string{xdg.DataHome}, xdg.DataDirs...),
		queue:     make(chan string, 8),
	}
	m.applyConfig(cfg)
	return m
}

// SetSoundDirs overrides the data directories searched for sound-name hints.
func (m *Manager) SetSoundDirs(dirs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.soundDirs = dirs
}

func (m *Manager) applyConfig(cfg *config.DaemonConfig) {
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = cfg.Audio.Enabled
	m.player.SetVolume(float64(cfg.Audio.Volume) / 100.0)

	clear(m.sounds)
	m.watcher.Reset()
	for _, u := range []model.Urgency{model.UrgencyLow, model.UrgencyNormal, model.UrgencyCritical} {
		path := cfg.SoundForUrgency(u)
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger.Warn("sound file not found", "urgency", u.String(), "path", path)
			continue
		}
		m.sounds[u] = path
		m.watcher.Watch(path)
	}
}

// Start preloads configured sounds and starts the playback goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	if err := m.watcher.Start(ctx); err != nil {
		m.logger.Warn("sound file watcher unavailable", "error", err)
	}

	go m.playLoop(ctx)
	go m.preload()

	m.logger.Info("audio manager started", "enabled", m.Enabled())
	return nil
}

// Stop stops playback and releases the speaker.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh
	m.watcher.Stop()
	m.player.Close()
	m.logger.Debug("audio manager stopped")
}

// Enabled reports whether sounds are enabled in the configuration.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Play queues the sound for n. It reports whether anything was queued.
func (m *Manager) Play(n model.Notification) bool {
	path := m.SoundFor(n)
	if path == "" {
		return false
	}

	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return false
	}

	select {
	case m.queue <- path:
		return true
	default:
		m.logger.Debug("sound queue full, dropping", "path", path)
		return false
	}
}

// SoundFor resolves the sound file for n, or "" for silence.
func (m *Manager) SoundFor(n model.Notification) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.enabled || n.Hints.SuppressSound {
		return ""
	}
	if n.Hints.SoundFile != "" {
		return config.ExpandPath(n.Hints.SoundFile)
	}
	if n.Hints.SoundName != "" {
		if p := m.lookupSoundName(n.Hints.SoundName); p != "" {
			return p
		}
	}
	return m.sounds[n.Urgency]
}

// lookupSoundName searches the freedesktop sound theme.
func (m *Manager) lookupSoundName(name string) string {
	for _, dir := range m.soundDirs {
		for _, ext := range soundThemeExtensions {
			p := filepath.Join(dir, "sounds", "freedesktop", "stereo", name+ext)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// UpdateConfig applies a reloaded configuration.
func (m *Manager) UpdateConfig(cfg *config.DaemonConfig) {
	m.player.ClearCache()
	m.applyConfig(cfg)
	go m.preload()
	m.logger.Debug("audio manager config updated")
}

func (m *Manager) preload() {
	m.mu.RLock()
	paths := make([]string, 0, len(m.sounds))
	for _, p := range m.sounds {
		paths = append(paths, p)
	}
	m.mu.RUnlock()

	for _, p := range paths {
		if err := m.player.Preload(p); err != nil {
			m.logger.Warn("failed to preload sound", "path", p, "error", err)
		}
	}
}

func (m *Manager) playLoop(ctx context.Context) {
	defer close(m.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case path := <-m.queue:
			if err := m.player.Play(path); err != nil {
				m.logger.Warn("failed to play sound", "path", path, "error", err)
			}
		}
	}
}
