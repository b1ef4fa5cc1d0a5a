// Package config handles configuration loading for glintd and glintctl.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

// Default glintctl configuration values.
const (
	DefaultFormat       = "table"
	DefaultHistoryLimit = 20
	DefaultBodyWidth    = 50
)

// Config represents the glintctl configuration.
type Config struct {
	Output  OutputConfig  `toml:"output"`
	History HistoryOutput `toml:"history"`
	Watch   WatchConfig   `toml:"watch"`
}

// OutputConfig holds listing options.
type OutputConfig struct {
	Format        string `toml:"format"`         // table, json, yaml, ids, dmenu
	BodyWidth     int    `toml:"body_width"`     // Body column truncation
	DmenuTemplate string `toml:"dmenu_template"` // Custom line for the dmenu format
}

// HistoryOutput holds history query defaults.
type HistoryOutput struct {
	Limit int `toml:"limit"`
}

// WatchConfig holds TUI-specific settings.
type WatchConfig struct {
	ShowHelp bool `toml:"show_help"`
}

// ValidFormats lists the output formats glintctl understands.
func ValidFormats() []string {
	return []string{"table", "json", "yaml", "ids", "dmenu"}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Format:    DefaultFormat,
			BodyWidth: DefaultBodyWidth,
		},
		History: HistoryOutput{
			Limit: DefaultHistoryLimit,
		},
		Watch: WatchConfig{
			ShowHelp: true,
		},
	}
}

// ConfigPath returns the path to the glintctl config file.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "glint", "glintctl.toml")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &InvalidError{Path: path, Err: err}
	}

	valid := false
	for _, f := range ValidFormats() {
		if cfg.Output.Format == f {
			valid = true
			break
		}
	}
	if !valid {
		return nil, &InvalidError{Path: path, Err: fmt.Errorf("invalid output format %q, must be one of: %v", cfg.Output.Format, ValidFormats())}
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
