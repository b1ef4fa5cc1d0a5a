// Package model defines the core data structures shared by the glint daemon,
// its control interface and the CLI.
package model

import (
	"fmt"
	"image"
	"strings"
	"time"
)

// Urgency is the freedesktop urgency tier. It is ordinal: a higher value
// sorts first and picks a louder style.
type Urgency int

// Urgency levels matching freedesktop spec.
const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// UrgencyNames maps urgency levels to human-readable names.
var UrgencyNames = map[Urgency]string{
	UrgencyLow:      "low",
	UrgencyNormal:   "normal",
	UrgencyCritical: "critical",
}

// String returns the lowercase name of the urgency.
func (u Urgency) String() string {
	if name, ok := UrgencyNames[u]; ok {
		return name
	}
	return UrgencyNames[UrgencyNormal]
}

// ClampUrgency maps out-of-range hint values to normal.
func ClampUrgency(v int) Urgency {
	if v < int(UrgencyLow) || v > int(UrgencyCritical) {
		return UrgencyNormal
	}
	return Urgency(v)
}

// ParseUrgency parses a urgency name ("low", "normal", "critical") or digit.
func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return UrgencyLow, nil
	case "normal", "1", "":
		return UrgencyNormal, nil
	case "critical", "2":
		return UrgencyCritical, nil
	}
	return UrgencyNormal, fmt.Errorf("invalid urgency %q", s)
}

// Phase is the display phase of a notification.
type Phase int

const (
	// PhasePending notifications are stored but have not been shown yet
	// (overflowed, inhibited, or waiting for the first layout).
	PhasePending Phase = iota
	// PhaseAnimating notifications are fading in.
	PhaseAnimating
	// PhaseVisible notifications are fully shown.
	PhaseVisible
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseAnimating:
		return "animating"
	case PhaseVisible:
		return "visible"
	default:
		return "pending"
	}
}

// TimeoutKind selects how a notification expires.
type TimeoutKind int

const (
	// TimeoutDefault uses the configured timeout for the urgency.
	TimeoutDefault TimeoutKind = iota
	// TimeoutNever keeps the notification until it is closed.
	TimeoutNever
	// TimeoutExplicit uses the requested duration.
	TimeoutExplicit
)

// Timeout is the timeout policy requested by the sender.
type Timeout struct {
	Kind     TimeoutKind
	Duration time.Duration
}

// TimeoutFromExpire converts a freedesktop expire_timeout (milliseconds,
// -1 for server default, 0 for never) to a Timeout.
func TimeoutFromExpire(ms int32) Timeout {
	switch {
	case ms < 0:
		return Timeout{Kind: TimeoutDefault}
	case ms == 0:
		return Timeout{Kind: TimeoutNever}
	default:
		return Timeout{Kind: TimeoutExplicit, Duration: time.Duration(ms) * time.Millisecond}
	}
}

// Resolve returns the effective expiry for the policy. A zero result means
// the notification never expires.
func (t Timeout) Resolve(def time.Duration) time.Duration {
	switch t.Kind {
	case TimeoutNever:
		return 0
	case TimeoutExplicit:
		return t.Duration
	default:
		if def < 0 {
			return 0
		}
		return def
	}
}

// String formats the timeout for listings.
func (t Timeout) String() string {
	switch t.Kind {
	case TimeoutNever:
		return "never"
	case TimeoutExplicit:
		return t.Duration.String()
	default:
		return "default"
	}
}

// Action represents a notification action with key and label.
type Action struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// Link is a hyperlink taken from a notification body.
type Link struct {
	Href string `json:"href" yaml:"href"`
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Label returns the text shown on the link's button.
func (l Link) Label() string {
	if t := strings.TrimSpace(l.Text); t != "" {
		return t
	}
	return l.Href
}

// DefaultActionKey is the action invoked by clicking the notification body.
const DefaultActionKey = "default"

// RawImage is the decoded (iiibiiay) image-data hint.
type RawImage struct {
	Width         int
	Height        int
	RowStride     int
	HasAlpha      bool
	BitsPerSample int
	Channels      int
	Data          []byte
}

// Hints holds the typed subset of the hints dictionary the daemon acts on.
type Hints struct {
	Urgency       Urgency
	Category      string
	DesktopEntry  string
	ImagePath     string
	ImageData     *RawImage
	SoundFile     string
	SoundName     string
	SuppressSound bool
	Resident      bool
	Transient     bool
	Progress      int // 0-100, -1 when absent
	StackTag      string
	Foreground    string
	Background    string
	Frame         string
	Extra         map[string]string
}

// DefaultHints returns hints for a notification that carried none.
func DefaultHints() Hints {
	return Hints{Urgency: UrgencyNormal, Progress: -1}
}

// Rect is an axis-aligned rectangle in output pixels.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y float64) bool {
	return x >= float64(r.X) && x < float64(r.X+r.W) && y >= float64(r.Y) && y < float64(r.Y+r.H)
}

// Union returns the smallest rectangle containing both.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.W, o.X+o.W), max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Notification is one live popup owned by the notification store.
type Notification struct {
	ID      uint32
	AppName string
	Summary string
	Body    string
	Icon    string
	Actions []Action
	Links   []Link
	Hints   Hints
	Timeout Timeout

	Urgency   Urgency
	CreatedAt time.Time
	UpdatedAt time.Time
	// Seq is the insertion sequence; it increases with every insert and is
	// kept across in-place replacement.
	Seq uint64

	Phase     Phase
	Remaining time.Duration // remaining expiry while paused, 0 if running or never
	Bounds    Rect
	Reason    DismissReason

	StackCount int
	// IconGen changes whenever the icon source changes so stale decode
	// results can be discarded.
	IconGen   uint64
	IconImage image.Image
}

// HasAction reports whether key is one of the declared actions.
func (n *Notification) HasAction(key string) bool {
	for _, a := range n.Actions {
		if a.Key == key {
			return true
		}
	}
	return false
}

// DefaultAction returns the key invoked for a body click: "default" when
// declared, otherwise the first action.
func (n *Notification) DefaultAction() (string, bool) {
	if len(n.Actions) == 0 {
		return "", false
	}
	if n.HasAction(DefaultActionKey) {
		return DefaultActionKey, true
	}
	return n.Actions[0].Key, true
}

// ButtonActions returns the actions rendered as buttons. The default action
// is bound to the body and not drawn.
func (n *Notification) ButtonActions() []Action {
	out := make([]Action, 0, len(n.Actions))
	for _, a := range n.Actions {
		if a.Key == DefaultActionKey {
			continue
		}
		out = append(out, a)
	}
	return out
}

// IconSource returns the icon reference to resolve, preferring the
// image-path hint over app_icon.
func (n *Notification) IconSource() string {
	if n.Hints.ImagePath != "" {
		return n.Hints.ImagePath
	}
	return n.Icon
}

// Clone returns a copy that shares no mutable slices with n.
func (n *Notification) Clone() Notification {
	c := *n
	c.Actions = append([]Action(nil), n.Actions...)
	c.Links = append([]Link(nil), n.Links...)
	if n.Hints.Extra != nil {
		c.Hints.Extra = make(map[string]string, len(n.Hints.Extra))
		for k, v := range n.Hints.Extra {
			c.Hints.Extra[k] = v
		}
	}
	return c
}

// BodyTruncated returns the body truncated to maxLen runes.
// If the body is longer, it is truncated and "..." is appended.
func (n *Notification) BodyTruncated(maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	// Collapse whitespace and newlines to single spaces
	body := []rune(strings.Join(strings.Fields(n.Body), " "))

	if len(body) <= maxLen {
		return string(body)
	}
	if maxLen <= 3 {
		return string(body[:maxLen])
	}
	return string(body[:maxLen-3]) + "..."
}
