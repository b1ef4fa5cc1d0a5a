package render

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/jmylchreest/glint/internal/config"
	"github.com/jmylchreest/glint/internal/layout"
	"github.com/jmylchreest/glint/internal/model"
)

// Stats counts pipeline activity.
type Stats struct {
	Submitted uint64
	Skipped   uint64
	Lost      uint64
}

type iconKey struct {
	img  image.Image
	w, h int
}

// Pipeline turns layout frames into device draws. It is exclusively owned
// by the event loop.
type Pipeline struct {
	logger *slog.Logger
	device Device

	target  Drawable
	surface Surface

	glyphs *glyphCache
	colors colorCache
	icons  map[iconKey]*image.RGBA
	inst   Instances

	dirty bool
	stats Stats
}

// NewPipeline creates an unbound pipeline.
func NewPipeline(device Device, face font.Face, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if face == nil {
		face = layout.FallbackFace()
	}
	return &Pipeline{
		logger: logger,
		device: device,
		glyphs: newGlyphCache(face),
		colors: make(colorCache),
		icons:  make(map[iconKey]*image.RGBA),
	}
}

// Bind creates a fresh device surface for target at the given size. Any
// previous surface is released first.
func (p *Pipeline) Bind(target Drawable, width, height int) error {
	p.Unbind()

	surface, err := p.device.CreateSurface(target, width, height)
	if err != nil {
		return fmt.Errorf("failed to create surface: %w", err)
	}
	p.target = target
	p.surface = surface
	p.dirty = true
	p.logger.Debug("render surface bound", "width", width, "height", height)
	return nil
}

// Unbind releases the device surface. Rendering is skipped until the next
// Bind.
func (p *Pipeline) Unbind() {
	if p.surface != nil {
		p.surface.Release()
		p.logger.Debug("render surface released")
	}
	p.surface = nil
	p.target = nil
}

// Bound reports whether a surface is available.
func (p *Pipeline) Bound() bool {
	return p.surface != nil
}

// Target returns the bound compositor target.
func (p *Pipeline) Target() Drawable {
	return p.target
}

// SetFace switches the font face and drops cached glyphs.
func (p *Pipeline) SetFace(face font.Face) {
	p.glyphs = newGlyphCache(face)
	p.colors = make(colorCache)
	p.dirty = true
}

// MarkDirty requests that the next Render submits a frame.
func (p *Pipeline) MarkDirty() {
	p.dirty = true
}

// Dirty reports whether a frame is pending.
func (p *Pipeline) Dirty() bool {
	return p.dirty
}

// Stats returns activity counters.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Render draws the frame if anything changed since the last submission. It
// reports whether a frame was submitted. ErrSurfaceLost is passed through
// so the caller can rebind.
func (p *Pipeline) Render(f *layout.Frame) (bool, error) {
	if p.surface == nil || !p.dirty {
		p.stats.Skipped++
		return false, nil
	}

	p.build(f)
	if err := p.surface.Draw(&p.inst); err != nil {
		if errors.Is(err, ErrSurfaceLost) {
			p.stats.Lost++
			return false, err
		}
		return false, fmt.Errorf("failed to draw frame: %w", err)
	}

	p.dirty = false
	p.stats.Submitted++
	return true, nil
}

// build refills the instance buffers from f. Coordinates are translated so
// the frame bounds origin maps to the surface origin.
func (p *Pipeline) build(f *layout.Frame) {
	p.inst.reset()
	usedIcons := make(map[iconKey]*image.RGBA, len(p.icons))

	dx, dy := -f.Bounds.X, -f.Bounds.Y
	layers := len(f.Items) + 1

	for i := range f.Items {
		it := &f.Items[i]
		st := it.Style
		op := it.Opacity
		clip := toImageRect(it.Rect, dx, dy)

		bg := placedRect(it.Rect, dx, dy)
		bg.Fill = p.colors.get(st.Background).Scale(op)
		bg.Border = p.colors.get(st.Border).Scale(op)
		bg.BorderWidth = float64(st.BorderWidth)
		bg.Radii = st.Radii()
		bg.Depth = depthFor(it.Z, subBackground, layers)
		if it.Selected {
			bg.Border = p.colors.get(st.Progress).Scale(op)
			bg.BorderWidth = max(bg.BorderWidth, 2)
		}
		p.inst.Rects = append(p.inst.Rects, bg)

		fg := p.colors.get(st.Foreground).Scale(op)
		for _, l := range it.Summary {
			p.inst.Glyphs = p.glyphs.appendText(p.inst.Glyphs, l.Text, l.X+dx, l.Baseline+dy, fg, clip, depthFor(it.Z, subContent, layers))
		}
		body := fg.Scale(0.85)
		for _, l := range it.Body {
			p.inst.Glyphs = p.glyphs.appendText(p.inst.Glyphs, l.Text, l.X+dx, l.Baseline+dy, body, clip, depthFor(it.Z, subContent, layers))
		}

		for _, a := range it.Actions {
			p.button(a, st, op, it.Z, layers, dx, dy)
		}
		for _, l := range it.Links {
			p.button(l, st, op, it.Z, layers, dx, dy)
		}
		if !it.Dismiss.Empty() {
			p.button(layout.ActionBox{Label: it.DismissLabel, Rect: it.Dismiss}, st, op, it.Z, layers, dx, dy)
		}

		if it.Progress >= 0 && !it.ProgressRect.Empty() {
			radius := float64(it.ProgressRect.H) / 2
			track := placedRect(it.ProgressRect, dx, dy)
			track.Fill = p.colors.get(st.ProgressBackground).Scale(op)
			track.Radii = [4]float64{radius, radius, radius, radius}
			track.Depth = depthFor(it.Z, subTrack, layers)
			p.inst.Rects = append(p.inst.Rects, track)

			if w := it.ProgressRect.W * min(it.Progress, 100) / 100; w > 0 {
				bar := track
				bar.W = float64(w)
				bar.Fill = p.colors.get(st.Progress).Scale(op)
				bar.Depth = depthFor(it.Z, subContent, layers)
				p.inst.Rects = append(p.inst.Rects, bar)
			}
		}

		if it.Icon != nil && !it.IconRect.Empty() {
			key := iconKey{img: it.Icon, w: it.IconRect.W, h: it.IconRect.H}
			scaled, ok := p.icons[key]
			if !ok {
				scaled = scaleIcon(it.Icon, key.w, key.h)
			}
			usedIcons[key] = scaled
			p.inst.Icons = append(p.inst.Icons, IconInstance{
				Dst:     toImageRect(it.IconRect, dx, dy),
				Img:     scaled,
				Opacity: op,
				Depth:   depthFor(it.Z, subContent, layers),
			})
		}
	}

	if c := f.Counter; c != nil {
		bg := placedRect(c.Rect, dx, dy)
		bg.Fill = p.colors.get(c.Style.Background)
		bg.Border = p.colors.get(c.Style.Border)
		bg.BorderWidth = float64(c.Style.BorderWidth)
		bg.Radii = c.Style.Radii()
		bg.Depth = depthFor(c.Z, subBackground, layers)
		p.inst.Rects = append(p.inst.Rects, bg)
		p.inst.Glyphs = p.glyphs.appendText(p.inst.Glyphs, c.Label.Text, c.Label.X+dx, c.Label.Baseline+dy,
			p.colors.get(c.Style.Foreground), toImageRect(c.Rect, dx, dy), depthFor(c.Z, subContent, layers))
	}

	p.icons = usedIcons
}

// button queues a rounded button with its centred label.
func (p *Pipeline) button(b layout.ActionBox, st config.Style, op float64, z, layers, dx, dy int) {
	bg := placedRect(b.Rect, dx, dy)
	bg.Fill = p.colors.get(st.ButtonBackground).Scale(op)
	bg.Radii = [4]float64{4, 4, 4, 4}
	bg.Depth = depthFor(z, subTrack, layers)
	p.inst.Rects = append(p.inst.Rects, bg)
	label := p.colors.get(st.ButtonForeground).Scale(op)
	p.inst.Glyphs = p.glyphs.appendText(p.inst.Glyphs, b.Label.Text, b.Label.X+dx, b.Label.Baseline+dy, label,
		toImageRect(b.Rect, dx, dy), depthFor(z, subLabel, layers))
}

func placedRect(r model.Rect, dx, dy int) RectInstance {
	return RectInstance{
		X: float64(r.X + dx),
		Y: float64(r.Y + dy),
		W: float64(r.W),
		H: float64(r.H),
	}
}

func toImageRect(r model.Rect, dx, dy int) image.Rectangle {
	return image.Rect(r.X+dx, r.Y+dy, r.X+dx+r.W, r.Y+dy+r.H)
}

// scaleIcon resamples img to fit a w x h box keeping its aspect ratio. The
// result is w x h premultiplied RGBA with the image centred and the rest
// transparent.
func scaleIcon(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Empty() {
		return dst
	}
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	fw, fh := w, b.Dy()*w/b.Dx()
	if fh > h {
		fw, fh = b.Dx()*h/b.Dy(), h
	}
	fw, fh = max(fw, 1), max(fh, 1)
	x0, y0 := (w-fw)/2, (h-fh)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+fw, y0+fh), img, b, draw.Src, nil)
	return dst
}
