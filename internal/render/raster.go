package render

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// RasterDevice rasterizes frames in software. Blending happens in linear
// premultiplied space; presented frames are premultiplied sRGB.
type RasterDevice struct{}

// NewRasterDevice creates a software device.
func NewRasterDevice() *RasterDevice {
	initLUTs()
	return &RasterDevice{}
}

// CreateSurface allocates buffers for a width x height target.
func (d *RasterDevice) CreateSurface(target Drawable, width, height int) (Surface, error) {
	if target == nil {
		return nil, fmt.Errorf("failed to create surface: %w", ErrSurfaceLost)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	n := width * height
	return &rasterSurface{
		target: target,
		w:      width,
		h:      height,
		accum:  make([]Color, n),
		depth:  make([]float64, n),
		out:    image.NewRGBA(image.Rect(0, 0, width, height)),
	}, nil
}

type rasterSurface struct {
	target   Drawable
	w, h     int
	accum    []Color
	depth    []float64
	out      *image.RGBA
	ops      []drawOp
	released bool
}

type drawOp struct {
	kind  int
	index int
	depth float64
}

const (
	opRect = iota
	opGlyph
	opIcon
)

func (s *rasterSurface) Size() (int, int) {
	return s.w, s.h
}

func (s *rasterSurface) Release() {
	s.released = true
	s.target = nil
	s.accum = nil
	s.depth = nil
	s.out = nil
}

// Draw rasterizes the instances far-to-near with a depth test and presents
// the result.
func (s *rasterSurface) Draw(inst *Instances) error {
	if s.released {
		return ErrSurfaceLost
	}

	for i := range s.accum {
		s.accum[i] = Transparent
		s.depth[i] = 1
	}

	s.ops = s.ops[:0]
	for i, r := range inst.Rects {
		s.ops = append(s.ops, drawOp{kind: opRect, index: i, depth: r.Depth})
	}
	for i, g := range inst.Glyphs {
		s.ops = append(s.ops, drawOp{kind: opGlyph, index: i, depth: g.Depth})
	}
	for i, ic := range inst.Icons {
		s.ops = append(s.ops, drawOp{kind: opIcon, index: i, depth: ic.Depth})
	}
	sort.SliceStable(s.ops, func(i, j int) bool {
		return s.ops[i].depth > s.ops[j].depth
	})

	for _, op := range s.ops {
		switch op.kind {
		case opRect:
			s.drawRect(&inst.Rects[op.index])
		case opGlyph:
			s.drawGlyph(&inst.Glyphs[op.index])
		case opIcon:
			s.drawIcon(&inst.Icons[op.index])
		}
	}

	s.encode()
	return s.target.Present(s.out)
}

// blend composites src at pixel i if it passes the depth test. Fully opaque
// fragments write depth.
func (s *rasterSurface) blend(i int, src Color, depth float64) {
	if src.A <= 0 || depth > s.depth[i] {
		return
	}
	s.accum[i] = src.Over(s.accum[i])
	if src.A >= 1 {
		s.depth[i] = depth
	}
}

func (s *rasterSurface) drawRect(r *RectInstance) {
	if r.W <= 0 || r.H <= 0 {
		return
	}
	outer := ClampRadii(r.Radii, r.W, r.H)
	bw := max(min(r.BorderWidth, min(r.W, r.H)/2), 0)
	inner := InnerRadii(outer, bw, r.W, r.H)

	x0 := max(int(math.Floor(r.X)), 0)
	y0 := max(int(math.Floor(r.Y)), 0)
	x1 := min(int(math.Ceil(r.X+r.W)), s.w)
	y1 := min(int(math.Ceil(r.Y+r.H)), s.h)

	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			cx, cy := float64(px)+0.5, float64(py)+0.5
			co := coverage(roundedBoxDistance(cx, cy, r.X, r.Y, r.W, r.H, outer))
			if co <= 0 {
				continue
			}
			ci := co
			if bw > 0 {
				ci = min(coverage(roundedBoxDistance(cx, cy, r.X+bw, r.Y+bw, r.W-2*bw, r.H-2*bw, inner)), co)
			}
			src := r.Border.Scale(co - ci)
			src = Color{
				R: src.R + r.Fill.R*ci,
				G: src.G + r.Fill.G*ci,
				B: src.B + r.Fill.B*ci,
				A: src.A + r.Fill.A*ci,
			}
			s.blend(py*s.w+px, src, r.Depth)
		}
	}
}

func coverage(d float64) float64 {
	return min(max(0.5-d, 0), 1)
}

// roundedBoxDistance is the signed distance from (px, py) to a box with
// per-corner radii; negative inside.
func roundedBoxDistance(px, py, x, y, w, h float64, radii [4]float64) float64 {
	if w <= 0 || h <= 0 {
		return math.Inf(1)
	}
	hw, hh := w/2, h/2
	dx, dy := px-(x+hw), py-(y+hh)

	var r float64
	switch {
	case dx < 0 && dy < 0:
		r = radii[0]
	case dx >= 0 && dy < 0:
		r = radii[1]
	case dx >= 0:
		r = radii[2]
	default:
		r = radii[3]
	}

	qx := math.Abs(dx) - hw + r
	qy := math.Abs(dy) - hh + r
	outside := math.Hypot(max(qx, 0), max(qy, 0))
	inside := min(max(qx, qy), 0)
	return outside + inside - r
}

func (s *rasterSurface) drawGlyph(g *GlyphInstance) {
	if g.Mask == nil {
		return
	}
	area := g.Dst.Intersect(image.Rect(0, 0, s.w, s.h))
	if !g.Clip.Empty() {
		area = area.Intersect(g.Clip)
	}
	for py := area.Min.Y; py < area.Max.Y; py++ {
		for px := area.Min.X; px < area.Max.X; px++ {
			a := g.Mask.AlphaAt(px-g.Dst.Min.X, py-g.Dst.Min.Y).A
			if a == 0 {
				continue
			}
			s.blend(py*s.w+px, g.Color.Scale(float64(a)/255), g.Depth)
		}
	}
}

func (s *rasterSurface) drawIcon(ic *IconInstance) {
	if ic.Img == nil || ic.Opacity <= 0 {
		return
	}
	area := ic.Dst.Intersect(image.Rect(0, 0, s.w, s.h))
	for py := area.Min.Y; py < area.Max.Y; py++ {
		for px := area.Min.X; px < area.Max.X; px++ {
			o := ic.Img.PixOffset(px-ic.Dst.Min.X, py-ic.Dst.Min.Y)
			p := ic.Img.Pix[o : o+4 : o+4]
			if p[3] == 0 {
				continue
			}
			s.blend(py*s.w+px, decodePremultiplied(p[0], p[1], p[2], p[3]).Scale(ic.Opacity), ic.Depth)
		}
	}
}

// decodePremultiplied converts a premultiplied sRGB pixel to linear
// premultiplied.
func decodePremultiplied(r, g, b, a uint8) Color {
	alpha := float64(a) / 255
	unpremul := func(v uint8) float64 {
		if a == 255 {
			return decodeChannel(v)
		}
		u := min(float64(v)*255/float64(a), 255)
		return decodeChannel(uint8(u + 0.5))
	}
	return Color{
		R: unpremul(r) * alpha,
		G: unpremul(g) * alpha,
		B: unpremul(b) * alpha,
		A: alpha,
	}
}

// encode writes the accumulation buffer as premultiplied sRGB bytes.
func (s *rasterSurface) encode() {
	pix := s.out.Pix
	for i, c := range s.accum {
		o := i * 4
		a := min(max(c.A, 0), 1)
		if a <= 0 {
			pix[o], pix[o+1], pix[o+2], pix[o+3] = 0, 0, 0, 0
			continue
		}
		pix[o] = premulByte(encodeChannel(c.R/a), a)
		pix[o+1] = premulByte(encodeChannel(c.G/a), a)
		pix[o+2] = premulByte(encodeChannel(c.B/a), a)
		pix[o+3] = uint8(math.Round(a * 255))
	}
}

func premulByte(v uint8, a float64) uint8 {
	if a >= 1 {
		return v
	}
	return uint8(math.Round(float64(v) * a))
}
