package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/glint/internal/model"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", "1h30m", or integer milliseconds for backwards compatibility.
// A value of "0" or 0 means never expire.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Try parsing as integer (milliseconds) for backwards compatibility
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	// Parse as duration string (e.g., "5s", "1m", "1h30m")
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DaemonConfig is the configuration for glintd.
// Loaded from $XDG_CONFIG_HOME/glint/glintd.toml
type DaemonConfig struct {
	General   GeneralConfig   `toml:"general"`
	Layout    LayoutConfig    `toml:"layout"`
	Timeouts  TimeoutConfig   `toml:"timeouts"`
	Behavior  BehaviorConfig  `toml:"behavior"`
	Animation AnimationConfig `toml:"animation"`
	Styles    StylesConfig    `toml:"styles"`
	Audio     AudioConfig     `toml:"audio"`
	DnD       DnDConfig       `toml:"dnd"`
	Mouse     MouseConfig     `toml:"mouse"`
	Keyboard  KeyboardConfig  `toml:"keyboard"`
	History   HistoryConfig   `toml:"history"`
	Icons     IconsConfig     `toml:"icons"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// GeneralConfig holds placement and ordering policy.
type GeneralConfig struct {
	Anchor        string `toml:"anchor"`         // "top-right", "bottom-center", ...
	MaxVisible    int    `toml:"max_visible"`    // Popups shown before the overflow counter
	Stacking      string `toml:"stacking"`       // "newest-first" or "oldest-first"
	Order         string `toml:"order"`          // "priority" or "fixed"
	PinCritical   bool   `toml:"pin_critical"`   // Critical always takes the top slot
	Queue         string `toml:"queue"`          // "unordered" or "fifo"
	CounterFormat string `toml:"counter_format"` // fmt verb receives the hidden count
	LogLevel      string `toml:"log_level"`
}

// Margins are distances from the output edges in pixels.
type Margins struct {
	Top    int `toml:"top"`
	Right  int `toml:"right"`
	Bottom int `toml:"bottom"`
	Left   int `toml:"left"`
}

// LayoutConfig contains popup geometry settings.
type LayoutConfig struct {
	Width       int     `toml:"width"`
	MinHeight   int     `toml:"min_height"`
	MaxHeight   int     `toml:"max_height"`
	Padding     int     `toml:"padding"`
	Spacing     int     `toml:"spacing"` // Gap between stacked popups
	IconSize    int     `toml:"icon_size"`
	Margin      Margins `toml:"margin"`
	Font        string  `toml:"font"` // TTF/OTF path, empty for Go Regular
	FontSize    float64 `toml:"font_size"`
	LineSpacing int     `toml:"line_spacing"`
	Output      string  `toml:"output"` // Monitor connector, empty lets the compositor choose

	// DismissButton draws a close button in each popup's top-right corner.
	DismissButton bool `toml:"dismiss_button"`
}

// TimeoutConfig contains timeout settings per urgency level.
// Durations can be specified as "5s", "10s", "1m", etc. or as integer milliseconds.
// A value of "0" or 0 means never expire.
type TimeoutConfig struct {
	Low      Duration `toml:"low"`
	Normal   Duration `toml:"normal"`
	Critical Duration `toml:"critical"`
}

// BehaviorConfig contains store policy settings.
type BehaviorConfig struct {
	GroupBy              string `toml:"group_by"`           // "none", "app" or "stack-tag"
	ReplaceSameGroup     bool   `toml:"replace_same_group"` // Newer group member takes the older one's slot
	StackDuplicates      bool   `toml:"stack_duplicates"`   // Combine identical notifications
	PauseOnHover         bool   `toml:"pause_on_hover"`     // Pause timeout when mouse hovers
	PauseOnIdle          bool   `toml:"pause_on_idle"`      // Pause timeouts while the session is idle
	OpenLinks            bool   `toml:"open_links"`         // Show body links as buttons that open them
	CloseOnDefaultAction bool   `toml:"close_on_default_action"`
	CloseOnAction        bool   `toml:"close_on_action"`
}

// AnimationConfig controls fade-in.
type AnimationConfig struct {
	FadeIn Duration `toml:"fade_in"` // 0 disables animation
	Tick   Duration `toml:"tick"`
}

// Style is the look of one urgency tier. Colors are sRGB hex strings.
type Style struct {
	Background         string `toml:"background"`
	Foreground         string `toml:"foreground"`
	Border             string `toml:"border"`
	BorderWidth        int    `toml:"border_width"`
	BorderRadius       []int  `toml:"border_radius"` // one value or [tl, tr, br, bl]
	ButtonBackground   string `toml:"button_background"`
	ButtonForeground   string `toml:"button_foreground"`
	Progress           string `toml:"progress"`
	ProgressBackground string `toml:"progress_background"`
}

// Radii returns the per-corner radius in top-left, top-right, bottom-right,
// bottom-left order.
func (s Style) Radii() [4]float64 {
	switch len(s.BorderRadius) {
	case 1:
		r := float64(s.BorderRadius[0])
		return [4]float64{r, r, r, r}
	case 4:
		return [4]float64{
			float64(s.BorderRadius[0]),
			float64(s.BorderRadius[1]),
			float64(s.BorderRadius[2]),
			float64(s.BorderRadius[3]),
		}
	default:
		return [4]float64{}
	}
}

// StylesConfig holds the per-urgency styles plus the overflow counter.
type StylesConfig struct {
	Low      Style `toml:"low"`
	Normal   Style `toml:"normal"`
	Critical Style `toml:"critical"`
	Counter  Style `toml:"counter"`
}

// AudioConfig contains audio settings.
type AudioConfig struct {
	Enabled bool        `toml:"enabled"`
	Volume  int         `toml:"volume"` // 0-100
	Sounds  SoundConfig `toml:"sounds"`
}

// SoundConfig contains per-urgency sound file paths.
type SoundConfig struct {
	Low      string `toml:"low"`
	Normal   string `toml:"normal"`
	Critical string `toml:"critical"`
}

// DnDConfig contains Do Not Disturb settings.
type DnDConfig struct {
	Enabled        bool `toml:"enabled"`         // Initial state
	CriticalBypass bool `toml:"critical_bypass"` // Show critical even in DnD mode
}

// MouseConfig contains mouse button action mappings.
type MouseConfig struct {
	Left   string `toml:"left"`   // "dismiss", "do-action", "close-all", "none"
	Middle string `toml:"middle"` // "dismiss", "do-action", "close-all", "none"
	Right  string `toml:"right"`  // "dismiss", "do-action", "close-all", "none"
}

// KeyboardConfig maps key chords to navigation commands.
type KeyboardConfig struct {
	Dismiss    string `toml:"dismiss"`
	Invoke     string `toml:"invoke"`
	Next       string `toml:"next"`
	Prev       string `toml:"prev"`
	DismissAll string `toml:"dismiss_all"`
}

// HistoryConfig controls the closed-notification history.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Length  int    `toml:"length"` // Entries kept in memory and on disk
	Path    string `toml:"path"`   // Empty uses $XDG_DATA_HOME/glint/history.jsonl
}

// IconsConfig controls icon lookup and decoding.
type IconsConfig struct {
	Workers int    `toml:"workers"`
	Theme   string `toml:"theme"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Listen string `toml:"listen"` // Empty disables the endpoint
}

// MouseAction represents a mouse button action.
type MouseAction string

const (
	MouseActionDismiss  MouseAction = "dismiss"
	MouseActionDoAction MouseAction = "do-action"
	MouseActionCloseAll MouseAction = "close-all"
	MouseActionNone     MouseAction = "none"
)

// Position represents a popup anchor on the output.
type Position string

const (
	PositionTopLeft      Position = "top-left"
	PositionTopRight     Position = "top-right"
	PositionTopCenter    Position = "top-center"
	PositionBottomLeft   Position = "bottom-left"
	PositionBottomRight  Position = "bottom-right"
	PositionBottomCenter Position = "bottom-center"
	PositionCenter       Position = "center"
)

// ValidPositions returns all valid position values.
func ValidPositions() []Position {
	return []Position{
		PositionTopLeft,
		PositionTopRight,
		PositionTopCenter,
		PositionBottomLeft,
		PositionBottomRight,
		PositionBottomCenter,
		PositionCenter,
	}
}

// Policy values.
const (
	StackingNewestFirst = "newest-first"
	StackingOldestFirst = "oldest-first"

	OrderPriority = "priority"
	OrderFixed    = "fixed"

	QueueUnordered = "unordered"
	QueueFIFO      = "fifo"

	GroupByNone     = "none"
	GroupByApp      = "app"
	GroupByStackTag = "stack-tag"
)

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		General: GeneralConfig{
			Anchor:        string(PositionTopRight),
			MaxVisible:    5,
			Stacking:      StackingNewestFirst,
			Order:         OrderPriority,
			PinCritical:   true,
			Queue:         QueueUnordered,
			CounterFormat: "+%d more",
			LogLevel:      "info",
		},
		Layout: LayoutConfig{
			Width:         350,
			MinHeight:     48,
			MaxHeight:     240,
			Padding:       10,
			Spacing:       6,
			IconSize:      48,
			Margin:        Margins{Top: 10, Right: 10, Bottom: 10, Left: 10},
			FontSize:      13,
			LineSpacing:   2,
			DismissButton: true,
		},
		Timeouts: TimeoutConfig{
			Low:      Duration(5 * time.Second),
			Normal:   Duration(10 * time.Second),
			Critical: Duration(0), // Never expires
		},
		Behavior: BehaviorConfig{
			GroupBy:              GroupByNone,
			StackDuplicates:      true,
			PauseOnHover:         true,
			PauseOnIdle:          true,
			OpenLinks:            true,
			CloseOnDefaultAction: true,
		},
		Animation: AnimationConfig{
			FadeIn: Duration(150 * time.Millisecond),
			Tick:   Duration(16 * time.Millisecond),
		},
		Styles: StylesConfig{
			Low:      defaultStyle("#a6adc8"),
			Normal:   defaultStyle("#89b4fa"),
			Critical: defaultStyle("#f38ba8"),
			Counter: Style{
				Background:   "#1e1e2ecc",
				Foreground:   "#cdd6f4",
				Border:       "#45475a",
				BorderWidth:  1,
				BorderRadius: []int{6},
			},
		},
		Audio: AudioConfig{
			Enabled: true,
			Volume:  80,
			Sounds:  SoundConfig{},
		},
		DnD: DnDConfig{
			Enabled:        false,
			CriticalBypass: true,
		},
		Mouse: MouseConfig{
			Left:   string(MouseActionDismiss),
			Middle: string(MouseActionDoAction),
			Right:  string(MouseActionCloseAll),
		},
		Keyboard: KeyboardConfig{
			Dismiss:    "Escape",
			Invoke:     "Return",
			Next:       "j",
			Prev:       "k",
			DismissAll: "shift+Escape",
		},
		History: HistoryConfig{
			Enabled: true,
			Length:  500,
		},
		Icons: IconsConfig{
			Workers: 2,
			Theme:   "hicolor",
		},
	}
}

func defaultStyle(accent string) Style {
	return Style{
		Background:         "#1e1e2eff",
		Foreground:         "#cdd6f4",
		Border:             accent,
		BorderWidth:        2,
		BorderRadius:       []int{8},
		ButtonBackground:   "#313244",
		ButtonForeground:   "#cdd6f4",
		Progress:           accent,
		ProgressBackground: "#45475a",
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "glint", "glintd.toml")
}

// InvalidError reports a configuration that failed to parse or validate.
// A reload that fails with InvalidError leaves the active snapshot in place.
type InvalidError struct {
	Path string
	Err  error
}

func (e *InvalidError) Error() string {
	if e.Path == "" {
		return "invalid configuration: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Path, e.Err)
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// LoadDaemonConfig loads the daemon configuration from path, or from the
// default location when path is empty. A missing file yields the defaults.
func LoadDaemonConfig(path string) (*DaemonConfig, error) {
	if path == "" {
		path = DaemonConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseDaemonConfig(path, data)
}

// ParseDaemonConfig overlays data on the defaults and validates the result.
func ParseDaemonConfig(path string, data []byte) (*DaemonConfig, error) {
	// Start with defaults, then overlay with file contents
	cfg := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, &InvalidError{Path: path, Err: fmt.Errorf("failed to parse config file: %w", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &InvalidError{Path: path, Err: err}
	}

	return cfg, nil
}

// SaveDaemonConfig writes cfg to path atomically.
func SaveDaemonConfig(path string, cfg *DaemonConfig) error {
	if path == "" {
		path = DaemonConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid. All problems are reported
// together.
func (c *DaemonConfig) Validate() error {
	var errs []error

	validPos := false
	for _, p := range ValidPositions() {
		if c.General.Anchor == string(p) {
			validPos = true
			break
		}
	}
	if !validPos {
		errs = append(errs, fmt.Errorf("invalid anchor %q, must be one of: %v", c.General.Anchor, ValidPositions()))
	}

	if c.General.MaxVisible < 1 || c.General.MaxVisible > 50 {
		errs = append(errs, fmt.Errorf("max_visible must be between 1 and 50, got %d", c.General.MaxVisible))
	}
	errs = append(errs, oneOf("stacking", c.General.Stacking, StackingNewestFirst, StackingOldestFirst))
	errs = append(errs, oneOf("order", c.General.Order, OrderPriority, OrderFixed))
	errs = append(errs, oneOf("queue", c.General.Queue, QueueUnordered, QueueFIFO))
	errs = append(errs, oneOf("group_by", c.Behavior.GroupBy, GroupByNone, GroupByApp, GroupByStackTag))
	if !strings.Contains(c.General.CounterFormat, "%d") {
		errs = append(errs, fmt.Errorf("counter_format %q must contain %%d", c.General.CounterFormat))
	}

	if c.Layout.Width < 100 || c.Layout.Width > 2000 {
		errs = append(errs, fmt.Errorf("width must be between 100 and 2000, got %d", c.Layout.Width))
	}
	if c.Layout.MinHeight < 0 || c.Layout.MaxHeight < c.Layout.MinHeight {
		errs = append(errs, fmt.Errorf("height bounds invalid: min %d, max %d", c.Layout.MinHeight, c.Layout.MaxHeight))
	}
	if c.Layout.Padding < 0 || c.Layout.Spacing < 0 || c.Layout.IconSize < 0 || c.Layout.LineSpacing < 0 {
		errs = append(errs, errors.New("padding, spacing, icon_size and line_spacing must not be negative"))
	}
	if c.Layout.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("font_size must be positive, got %g", c.Layout.FontSize))
	}

	for _, d := range []struct {
		name string
		v    Duration
	}{
		{"timeouts.low", c.Timeouts.Low},
		{"timeouts.normal", c.Timeouts.Normal},
		{"timeouts.critical", c.Timeouts.Critical},
		{"animation.fade_in", c.Animation.FadeIn},
	} {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}
	if c.Animation.FadeIn > 0 && c.Animation.Tick <= 0 {
		errs = append(errs, errors.New("animation.tick must be positive when fade_in is set"))
	}

	for name, s := range map[string]Style{
		"low":      c.Styles.Low,
		"normal":   c.Styles.Normal,
		"critical": c.Styles.Critical,
		"counter":  c.Styles.Counter,
	} {
		if err := s.validate(); err != nil {
			errs = append(errs, fmt.Errorf("styles.%s: %w", name, err))
		}
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		errs = append(errs, fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume))
	}

	validActions := map[string]bool{
		string(MouseActionDismiss):  true,
		string(MouseActionDoAction): true,
		string(MouseActionCloseAll): true,
		string(MouseActionNone):     true,
	}
	for _, action := range []string{c.Mouse.Left, c.Mouse.Middle, c.Mouse.Right} {
		if !validActions[action] {
			errs = append(errs, fmt.Errorf("invalid mouse action %q", action))
		}
	}

	for _, chord := range []string{c.Keyboard.Dismiss, c.Keyboard.Invoke, c.Keyboard.Next, c.Keyboard.Prev, c.Keyboard.DismissAll} {
		if chord == "" {
			continue
		}
		if _, err := ParseKeyChord(chord); err != nil {
			errs = append(errs, err)
		}
	}

	if c.History.Length < 0 {
		errs = append(errs, fmt.Errorf("history.length must not be negative, got %d", c.History.Length))
	}
	if c.Icons.Workers < 1 || c.Icons.Workers > 16 {
		errs = append(errs, fmt.Errorf("icons.workers must be between 1 and 16, got %d", c.Icons.Workers))
	}

	return errors.Join(errs...)
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q, must be one of: %v", name, value, allowed)
}

func (s Style) validate() error {
	var errs []error
	for _, c := range []string{s.Background, s.Foreground, s.Border, s.ButtonBackground, s.ButtonForeground, s.Progress, s.ProgressBackground} {
		if c != "" && !IsHexColor(c) {
			errs = append(errs, fmt.Errorf("invalid color %q", c))
		}
	}
	if s.BorderWidth < 0 {
		errs = append(errs, errors.New("border_width must not be negative"))
	}
	if n := len(s.BorderRadius); n != 0 && n != 1 && n != 4 {
		errs = append(errs, fmt.Errorf("border_radius needs 1 or 4 values, got %d", n))
	}
	for _, r := range s.BorderRadius {
		if r < 0 {
			errs = append(errs, errors.New("border_radius must not be negative"))
			break
		}
	}
	return errors.Join(errs...)
}

// IsHexColor reports whether s is #rgb, #rrggbb or #rrggbbaa.
func IsHexColor(s string) bool {
	if !strings.HasPrefix(s, "#") {
		return false
	}
	h := s[1:]
	if len(h) != 3 && len(h) != 6 && len(h) != 8 {
		return false
	}
	_, err := strconv.ParseUint(h, 16, 32)
	return err == nil
}

// TimeoutForUrgency returns the default expiry for the given urgency level.
// Zero means never.
func (c *DaemonConfig) TimeoutForUrgency(urgency model.Urgency) time.Duration {
	switch urgency {
	case model.UrgencyLow:
		return c.Timeouts.Low.Duration()
	case model.UrgencyCritical:
		return c.Timeouts.Critical.Duration()
	default:
		return c.Timeouts.Normal.Duration()
	}
}

// StyleForUrgency returns the style for the given urgency level.
func (c *DaemonConfig) StyleForUrgency(urgency model.Urgency) Style {
	switch urgency {
	case model.UrgencyLow:
		return c.Styles.Low
	case model.UrgencyCritical:
		return c.Styles.Critical
	default:
		return c.Styles.Normal
	}
}

// SoundForUrgency returns the sound file path for the given urgency level.
// Expands ~ to home directory.
func (c *DaemonConfig) SoundForUrgency(urgency model.Urgency) string {
	var path string
	switch urgency {
	case model.UrgencyLow:
		path = c.Audio.Sounds.Low
	case model.UrgencyCritical:
		path = c.Audio.Sounds.Critical
	default:
		path = c.Audio.Sounds.Normal
	}
	return ExpandPath(path)
}

// HistoryPath returns the history file location.
func (c *DaemonConfig) HistoryPath() string {
	if c.History.Path != "" {
		return ExpandPath(c.History.Path)
	}
	return filepath.Join(xdg.DataHome, "glint", "history.jsonl")
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
