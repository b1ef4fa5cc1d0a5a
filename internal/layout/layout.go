// Package layout turns a store snapshot into a positioned frame.
//
// Compute is pure: it reads only its Input and returns a fresh Frame, so
// the same input always produces the same frame.
package layout

import (
	"fmt"
	"image"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/model"
)

const (
	summaryMaxLines = 2
	buttonPadding   = 4
	progressHeight  = 6
	dismissGlyph    = "x"
)

// Output is the geometry of the monitor popups are placed on, in logical
// pixels.
type Output struct {
	Name   string
	Width  int
	Height int
	Scale  float64
}

// DefaultOutput is assumed until the compositor reports a monitor.
var DefaultOutput = Output{Width: 1920, Height: 1080, Scale: 1}

// Input is everything a layout depends on.
type Input struct {
	Notifications []model.Notification // store order
	Output        Output
	Config        *config.DaemonConfig
	Now           time.Time
	Measurer      Measurer
	Hovered       uint32
	Selected      uint32
	Inhibited     bool
}

// TextLine is one line of text. X and Baseline are in output coordinates.
type TextLine struct {
	Text     string
	X        int
	Baseline int
	Width    int
}

// ActionBox is a clickable button. Action buttons carry a Key; link
// buttons carry an Href.
type ActionBox struct {
	Key   string
	Href  string
	Label TextLine
	Rect  model.Rect
}

// Item is one laid-out notification.
type Item struct {
	ID        uint32
	Urgency   model.Urgency
	Rect      model.Rect
	Opacity   float64
	Animating bool
	// Z is the slot index; 0 is frontmost and nearest the anchor edge.
	Z     int
	Style config.Style

	IconRect model.Rect
	Icon     image.Image

	Summary []TextLine
	Body    []TextLine
	Actions []ActionBox
	Links   []ActionBox

	// Dismiss is the close button; empty when disabled.
	Dismiss      model.Rect
	DismissLabel TextLine

	// Progress is 0-100, or -1 when no bar is drawn.
	Progress     int
	ProgressRect model.Rect

	StackCount int
	Hovered    bool
	Selected   bool
}

// Counter is the "+N more" widget shown when entries overflow.
type Counter struct {
	Hidden int
	Rect   model.Rect
	Label  TextLine
	Style  config.Style
	Z      int
}

// Frame is an immutable layout result.
type Frame struct {
	Items   []Item
	Hidden  []uint32
	Waiting int
	Counter *Counter
	Bounds  model.Rect
	Output  Output
	// Animating is set while any item is still fading in.
	Animating bool
}

// Hit is the result of a hit test.
type Hit struct {
	ID uint32
	// Action is the key of the action button under the point, or empty for
	// the notification body.
	Action  string
	Href    string
	Dismiss bool
	Counter bool
}

// Empty reports whether the frame has nothing to draw.
func (f *Frame) Empty() bool {
	return len(f.Items) == 0 && f.Counter == nil
}

// IDs returns the visible ids in slot order.
func (f *Frame) IDs() []uint32 {
	ids := make([]uint32, len(f.Items))
	for i, it := range f.Items {
		ids[i] = it.ID
	}
	return ids
}

// Item returns the item for id.
func (f *Frame) Item(id uint32) (*Item, bool) {
	for i := range f.Items {
		if f.Items[i].ID == id {
			return &f.Items[i], true
		}
	}
	return nil, false
}

// HitTest returns what lies under the point (output coordinates).
func (f *Frame) HitTest(x, y float64) (Hit, bool) {
	for i := range f.Items {
		it := &f.Items[i]
		if !it.Rect.Contains(x, y) {
			continue
		}
		if !it.Dismiss.Empty() && it.Dismiss.Contains(x, y) {
			return Hit{ID: it.ID, Dismiss: true}, true
		}
		for _, a := range it.Actions {
			if a.Rect.Contains(x, y) {
				return Hit{ID: it.ID, Action: a.Key}, true
			}
		}
		for _, l := range it.Links {
			if l.Rect.Contains(x, y) {
				return Hit{ID: it.ID, Href: l.Href}, true
			}
		}
		return Hit{ID: it.ID}, true
	}
	if f.Counter != nil && f.Counter.Rect.Contains(x, y) {
		return Hit{Counter: true}, true
	}
	return Hit{}, false
}

// Compute lays out the notifications in the input.
func Compute(in Input) Frame {
	cfg := in.Config
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}
	m := in.Measurer
	if m == nil {
		m = NewFaceMeasurer(FallbackFace())
	}
	out := in.Output
	if out.Width <= 0 || out.Height <= 0 {
		out = DefaultOutput
	}

	f := Frame{Output: out}

	candidates := make([]*model.Notification, 0, len(in.Notifications))
	for i := range in.Notifications {
		n := &in.Notifications[i]
		if in.Inhibited && !(cfg.DnD.CriticalBypass && n.Urgency == model.UrgencyCritical) {
			f.Waiting++
			continue
		}
		candidates = append(candidates, n)
	}
	sortCandidates(candidates, cfg.General)

	maxVisible := max(cfg.General.MaxVisible, 1)
	visible := candidates
	if len(candidates) > maxVisible {
		visible = candidates[:maxVisible]
		for _, n := range candidates[maxVisible:] {
			f.Hidden = append(f.Hidden, n.ID)
		}
	}
	if len(visible) == 0 {
		return f
	}

	width := itemWidth(cfg.Layout, out)
	f.Items = make([]Item, len(visible))
	for i, n := range visible {
		f.Items[i] = buildItem(n, i, width, cfg, m, in)
		if f.Items[i].Animating {
			f.Animating = true
		}
	}
	if len(f.Hidden) > 0 {
		f.Counter = buildCounter(len(f.Hidden), len(visible), width, cfg, m)
	}

	place(&f, width, cfg)

	for _, it := range f.Items {
		f.Bounds = f.Bounds.Union(it.Rect)
	}
	if f.Counter != nil {
		f.Bounds = f.Bounds.Union(f.Counter.Rect)
	}
	return f
}

// sortCandidates orders entries by display priority. The sort is stable so
// store order breaks ties.
func sortCandidates(ns []*model.Notification, gen config.GeneralConfig) {
	switch {
	case gen.Order == config.OrderPriority:
		sort.SliceStable(ns, func(i, j int) bool {
			return ns[i].Urgency > ns[j].Urgency
		})
	case gen.PinCritical:
		sort.SliceStable(ns, func(i, j int) bool {
			return ns[i].Urgency == model.UrgencyCritical && ns[j].Urgency != model.UrgencyCritical
		})
	}
}

func itemWidth(lay config.LayoutConfig, out Output) int {
	avail := out.Width - lay.Margin.Left - lay.Margin.Right
	return max(min(lay.Width, avail), 1)
}

func buildItem(n *model.Notification, slot, width int, cfg *config.DaemonConfig, m Measurer, in Input) Item {
	lay := cfg.Layout
	pad := lay.Padding

	it := Item{
		ID:         n.ID,
		Urgency:    n.Urgency,
		Z:          slot,
		Style:      resolveStyle(cfg, n),
		Progress:   n.Hints.Progress,
		StackCount: n.StackCount,
		Hovered:    in.Hovered != 0 && n.ID == in.Hovered,
		Selected:   in.Selected != 0 && n.ID == in.Selected,
		Icon:       n.IconImage,
	}
	it.Opacity, it.Animating = fade(n.CreatedAt, in.Now, cfg.Animation.FadeIn.Duration())

	textX := pad
	iconH := 0
	if n.IconImage != nil {
		it.IconRect = model.Rect{X: pad, Y: pad, W: lay.IconSize, H: lay.IconSize}
		textX += lay.IconSize + pad
		iconH = lay.IconSize
	}
	textW := max(width-textX-pad, 1)

	lineH := int(math.Ceil(m.LineHeight()))
	ascent := int(math.Ceil(m.Ascent()))
	step := lineH + lay.LineSpacing

	// The summary keeps clear of the dismiss button in the top-right corner.
	summaryW := textW
	if lay.DismissButton {
		it.Dismiss = model.Rect{X: width - pad - lineH, Y: pad, W: lineH, H: lineH}
		it.DismissLabel = textLine(dismissGlyph, 0, pad+ascent, m)
		it.DismissLabel.X = it.Dismiss.X + (lineH-it.DismissLabel.Width)/2
		summaryW = max(textW-lineH-buttonPadding, 1)
	}

	summary := n.Summary
	if n.StackCount > 1 {
		summary = fmt.Sprintf("%s (%d)", summary, n.StackCount)
	}
	sumLines := wrap(summary, summaryW, m)
	if len(sumLines) > summaryMaxLines {
		sumLines = sumLines[:summaryMaxLines]
		sumLines[summaryMaxLines-1] = ellipsize(sumLines[summaryMaxLines-1], summaryW, m, true)
	}
	bodyLines := wrap(n.Body, textW, m)

	buttons := n.ButtonActions()
	var links []model.Link
	if cfg.Behavior.OpenLinks {
		links = n.Links
	}
	actionH := lineH + 2*buttonPadding
	footer := 0
	if len(buttons) > 0 {
		footer += pad + actionH
	}
	if len(links) > 0 {
		footer += pad + actionH
	}
	if it.Progress >= 0 {
		footer += pad + progressHeight
	}

	textHeight := func(lines int) int {
		if lines == 0 {
			return 0
		}
		return lines*step - lay.LineSpacing
	}
	heightFor := func(bodyCount int) int {
		return 2*pad + max(textHeight(len(sumLines)+bodyCount), iconH) + footer
	}

	height := heightFor(len(bodyLines))
	if lay.MaxHeight > 0 && height > lay.MaxHeight {
		truncated := false
		for len(bodyLines) > 0 && heightFor(len(bodyLines)) > lay.MaxHeight {
			bodyLines = bodyLines[:len(bodyLines)-1]
			truncated = true
		}
		if truncated && len(bodyLines) > 0 {
			last := len(bodyLines) - 1
			bodyLines[last] = ellipsize(bodyLines[last], textW, m, true)
		}
		height = min(heightFor(len(bodyLines)), lay.MaxHeight)
	}
	height = max(height, lay.MinHeight)
	it.Rect = model.Rect{W: width, H: height}

	y := pad
	for _, s := range sumLines {
		it.Summary = append(it.Summary, textLine(s, textX, y+ascent, m))
		y += step
	}
	for _, s := range bodyLines {
		it.Body = append(it.Body, textLine(s, textX, y+ascent, m))
		y += step
	}

	bottom := height - pad
	if it.Progress >= 0 {
		it.ProgressRect = model.Rect{X: textX, Y: bottom - progressHeight, W: textW, H: progressHeight}
		bottom -= progressHeight + pad
	}
	if len(buttons) > 0 {
		it.Actions = layoutButtons(buttons, pad, bottom-actionH, width-2*pad, actionH, ascent, m)
		bottom -= actionH + pad
	}
	if len(links) > 0 {
		labels := make([]model.Action, len(links))
		for i, l := range links {
			labels[i] = model.Action{Label: l.Label()}
		}
		it.Links = layoutButtons(labels, pad, bottom-actionH, width-2*pad, actionH, ascent, m)
		for i := range it.Links {
			it.Links[i].Href = links[i].Href
		}
	}
	return it
}

func layoutButtons(actions []model.Action, x, y, avail, h, ascent int, m Measurer) []ActionBox {
	n := len(actions)
	bw := max((avail-buttonPadding*(n-1))/n, 1)
	boxes := make([]ActionBox, n)
	for i, a := range actions {
		bx := x + i*(bw+buttonPadding)
		label := ellipsize(a.Label, max(bw-2*buttonPadding, 1), m, false)
		tl := textLine(label, 0, y+buttonPadding+ascent, m)
		tl.X = bx + (bw-tl.Width)/2
		boxes[i] = ActionBox{
			Key:   a.Key,
			Label: tl,
			Rect:  model.Rect{X: bx, Y: y, W: bw, H: h},
		}
	}
	return boxes
}

func buildCounter(hidden, slot, width int, cfg *config.DaemonConfig, m Measurer) *Counter {
	lineH := int(math.Ceil(m.LineHeight()))
	ascent := int(math.Ceil(m.Ascent()))
	pad := cfg.Layout.Padding / 2
	h := lineH + 2*pad

	text := fmt.Sprintf(cfg.General.CounterFormat, hidden)
	label := textLine(ellipsize(text, max(width-2*pad, 1), m, false), 0, pad+ascent, m)
	label.X = (width - label.Width) / 2

	return &Counter{
		Hidden: hidden,
		Rect:   model.Rect{W: width, H: h},
		Label:  label,
		Style:  cfg.Styles.Counter,
		Z:      slot,
	}
}

func textLine(s string, x, baseline int, m Measurer) TextLine {
	return TextLine{Text: s, X: x, Baseline: baseline, Width: int(math.Ceil(m.Advance(s)))}
}

// place moves items (built at the origin) to their output positions.
func place(f *Frame, width int, cfg *config.DaemonConfig) {
	lay := cfg.Layout
	out := f.Output
	anchor := cfg.General.Anchor

	var x int
	switch {
	case strings.HasSuffix(anchor, "-left"):
		x = lay.Margin.Left
	case strings.HasSuffix(anchor, "-right"):
		x = out.Width - lay.Margin.Right - width
	default:
		x = (out.Width - width) / 2
	}

	heights := make([]int, 0, len(f.Items)+1)
	for _, it := range f.Items {
		heights = append(heights, it.Rect.H)
	}
	if f.Counter != nil {
		heights = append(heights, f.Counter.Rect.H)
	}
	total := lay.Spacing * (len(heights) - 1)
	for _, h := range heights {
		total += h
	}

	offsets := make([]int, len(heights))
	switch {
	case strings.HasPrefix(anchor, "bottom"):
		y := out.Height - lay.Margin.Bottom
		for i, h := range heights {
			y -= h
			offsets[i] = y
			y -= lay.Spacing
		}
	default:
		y := lay.Margin.Top
		if !strings.HasPrefix(anchor, "top") {
			y = (out.Height - total) / 2
		}
		for i, h := range heights {
			offsets[i] = y
			y += h + lay.Spacing
		}
	}

	for i := range f.Items {
		f.Items[i].translate(x, offsets[i])
	}
	if f.Counter != nil {
		c := f.Counter
		dy := offsets[len(offsets)-1]
		c.Rect.X += x
		c.Rect.Y += dy
		c.Label.X += x
		c.Label.Baseline += dy
	}
}

func (it *Item) translate(dx, dy int) {
	move := func(r *model.Rect) {
		r.X += dx
		r.Y += dy
	}
	moveLine := func(l *TextLine) {
		l.X += dx
		l.Baseline += dy
	}

	move(&it.Rect)
	if !it.IconRect.Empty() {
		move(&it.IconRect)
	}
	if !it.ProgressRect.Empty() {
		move(&it.ProgressRect)
	}
	for i := range it.Summary {
		moveLine(&it.Summary[i])
	}
	for i := range it.Body {
		moveLine(&it.Body[i])
	}
	for i := range it.Actions {
		move(&it.Actions[i].Rect)
		moveLine(&it.Actions[i].Label)
	}
	for i := range it.Links {
		move(&it.Links[i].Rect)
		moveLine(&it.Links[i].Label)
	}
	if !it.Dismiss.Empty() {
		move(&it.Dismiss)
		moveLine(&it.DismissLabel)
	}
}

// fade returns the fade-in opacity and whether the fade is still running.
func fade(created, now time.Time, d time.Duration) (float64, bool) {
	if d <= 0 || now.IsZero() || created.IsZero() {
		return 1, false
	}
	elapsed := now.Sub(created)
	if elapsed >= d {
		return 1, false
	}
	if elapsed <= 0 {
		return 0, true
	}
	return float64(elapsed) / float64(d), true
}

// resolveStyle applies per-notification color hints on top of the urgency
// style.
func resolveStyle(cfg *config.DaemonConfig, n *model.Notification) config.Style {
	st := cfg.StyleForUrgency(n.Urgency)
	if config.IsHexColor(n.Hints.Foreground) {
		st.Foreground = n.Hints.Foreground
	}
	if config.IsHexColor(n.Hints.Background) {
		st.Background = n.Hints.Background
	}
	if config.IsHexColor(n.Hints.Frame) {
		st.Border = n.Hints.Frame
	}
	return st
}
