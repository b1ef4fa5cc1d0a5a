package config

import (
	"sync/atomic"
)

// Holder publishes the active configuration snapshot. Snapshots are never
// mutated after Store; a reload replaces the whole object.
type Holder struct {
	path    string
	current atomic.Pointer[DaemonConfig]
}

// NewHolder creates a holder for the config file at path with an initial
// snapshot. A nil cfg stores the defaults.
func NewHolder(path string, cfg *DaemonConfig) *Holder {
	if path == "" {
		path = DaemonConfigPath()
	}
	if cfg == nil {
		cfg = DefaultDaemonConfig()
	}
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h
}

// Path returns the file the holder reloads from.
func (h *Holder) Path() string {
	return h.path
}

// Get returns the active snapshot.
func (h *Holder) Get() *DaemonConfig {
	return h.current.Load()
}

// Store swaps in a new snapshot and returns the previous one.
func (h *Holder) Store(cfg *DaemonConfig) *DaemonConfig {
	return h.current.Swap(cfg)
}

// Load reads and validates the file without publishing it. The caller
// decides when to Store the result; on error the active snapshot is
// untouched.
func (h *Holder) Load() (*DaemonConfig, error) {
	return LoadDaemonConfig(h.path)
}
