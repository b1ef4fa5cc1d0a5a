// Package render draws layout frames onto compositor surfaces.
//
// The Pipeline owns one device surface per compositor target and rebuilds
// its instance buffers from every frame. All methods run on the event loop
// goroutine.
package render

import (
	"errors"
	"image"
)

var (
	// ErrSurfaceLost is returned when the compositor target went away; the
	// caller rebinds and retries.
	ErrSurfaceLost = errors.New("render surface lost")
	// ErrSurfaceFatal is returned when a rebind did not recover the surface.
	ErrSurfaceFatal = errors.New("render surface unrecoverable")
)

// Drawable is a compositor target that accepts finished frames. Present
// must not retain img after it returns.
type Drawable interface {
	Present(img *image.RGBA) error
}

// Device creates surfaces bound to compositor targets.
type Device interface {
	CreateSurface(target Drawable, width, height int) (Surface, error)
}

// Surface is a device surface tied 1:1 to a target and a size. It is
// recreated, never resized.
type Surface interface {
	Size() (width, height int)
	Draw(inst *Instances) error
	Release()
}

// RectInstance is a rounded rectangle with an optional border.
type RectInstance struct {
	X, Y, W, H  float64
	Fill        Color
	Border      Color
	BorderWidth float64
	// Radii are top-left, top-right, bottom-right, bottom-left.
	Radii [4]float64
	Depth float64
}

// GlyphInstance is one glyph coverage mask placed at Dst.
type GlyphInstance struct {
	Dst   image.Rectangle
	Mask  *image.Alpha
	Color Color
	Clip  image.Rectangle
	Depth float64
}

// IconInstance is a scaled icon. Img is sRGB premultiplied with bounds at
// the origin and the size of Dst.
type IconInstance struct {
	Dst     image.Rectangle
	Img     *image.RGBA
	Opacity float64
	Depth   float64
}

// Instances holds the per-primitive buffers of one frame. Buffers are
// truncated and refilled every frame so their backing arrays are reused.
type Instances struct {
	Rects  []RectInstance
	Glyphs []GlyphInstance
	Icons  []IconInstance
}

func (in *Instances) reset() {
	in.Rects = in.Rects[:0]
	in.Glyphs = in.Glyphs[:0]
	in.Icons = in.Icons[:0]
}

// Len returns the total number of primitives.
func (in *Instances) Len() int {
	return len(in.Rects) + len(in.Glyphs) + len(in.Icons)
}

// ClampRadii limits each corner radius to half the smaller side.
func ClampRadii(r [4]float64, w, h float64) [4]float64 {
	limit := max(min(w, h)/2, 0)
	for i := range r {
		r[i] = min(max(r[i], 0), limit)
	}
	return r
}

// InnerRadii returns the radii of the box inside a border of width bw,
// clamped against the inner box.
func InnerRadii(r [4]float64, bw, w, h float64) [4]float64 {
	for i := range r {
		r[i] = max(r[i]-bw, 0)
	}
	return ClampRadii(r, w-2*bw, h-2*bw)
}

// depthFor maps a slot and a sub-layer to a depth in (0,1); smaller is
// nearer. Slot 0 is frontmost; within a slot, higher sub-layers draw in
// front of lower ones but behind every nearer slot.
func depthFor(z, sub, layers int) float64 {
	return (float64(z) + 1 - float64(sub)*0.2) / float64(layers+1)
}

const (
	subBackground = iota
	subTrack
	subContent
	subLabel
)
