package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

// Transition records the last change of a toggle.
type Transition struct {
	Enabled   bool   `json:"enabled"`
	Source    string `json:"source,omitempty"` // e.g. "glintctl", "config"
	Timestamp int64  `json:"timestamp"`
}

// State is the daemon state that survives restarts.
type State struct {
	Inhibited      bool        `json:"inhibited"`
	Muted          bool        `json:"muted"`
	LastInhibit    *Transition `json:"last_inhibit,omitempty"`
	LastMute       *Transition `json:"last_mute,omitempty"`
	LastNotifiedAt int64       `json:"last_notified_at,omitempty"`
	SchemaVersion  int         `json:"schema_version"`
}

// CurrentStateVersion is the version written by SaveState.
const CurrentStateVersion = 1

var stateFileMutex sync.Mutex

// StatePath returns the default state file path.
func StatePath() string {
	return filepath.Join(xdg.DataHome, "glint", "state.json")
}

// DefaultState returns the state of a fresh install.
func DefaultState() *State {
	return &State{SchemaVersion: CurrentStateVersion}
}

// LoadState reads the state file. A missing or corrupted file yields the
// default state.
func LoadState(path string) (*State, error) {
	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultState(), nil
		}
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return DefaultState(), nil
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = CurrentStateVersion
	}
	return &st, nil
}

// SaveState writes the state atomically via a temp file.
func SaveState(path string, st *State) error {
	stateFileMutex.Lock()
	defer stateFileMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if st.SchemaVersion == 0 {
		st.SchemaVersion = CurrentStateVersion
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SetInhibited records an inhibit change.
func (s *State) SetInhibited(enabled bool, source string) {
	s.Inhibited = enabled
	s.LastInhibit = &Transition{Enabled: enabled, Source: source, Timestamp: time.Now().Unix()}
}

// SetMuted records a mute change.
func (s *State) SetMuted(enabled bool, source string) {
	s.Muted = enabled
	s.LastMute = &Transition{Enabled: enabled, Source: source, Timestamp: time.Now().Unix()}
}
