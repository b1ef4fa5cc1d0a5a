package render

import (
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

type glyphEntry struct {
	// bounds of the mask relative to the dot.
	bounds  image.Rectangle
	mask    *image.Alpha
	advance fixed.Int26_6
}

// glyphCache keeps copies of glyph masks. Faces may reuse their mask
// buffer between Glyph calls, so every mask is copied once.
type glyphCache struct {
	face    font.Face
	entries map[rune]glyphEntry
}

func newGlyphCache(face font.Face) *glyphCache {
	return &glyphCache{face: face, entries: make(map[rune]glyphEntry)}
}

func (c *glyphCache) get(r rune) glyphEntry {
	if e, ok := c.entries[r]; ok {
		return e
	}

	dr, mask, maskp, advance, _ := c.face.Glyph(fixed.Point26_6{}, r)
	e := glyphEntry{bounds: dr, advance: advance}
	if !dr.Empty() && mask != nil {
		a := image.NewAlpha(image.Rect(0, 0, dr.Dx(), dr.Dy()))
		draw.Draw(a, a.Bounds(), mask, maskp, draw.Src)
		e.mask = a
	}
	c.entries[r] = e
	return e
}

// appendText appends glyph instances for s with its baseline origin at
// (x, y).
func (c *glyphCache) appendText(dst []GlyphInstance, s string, x, y int, col Color, clip image.Rectangle, depth float64) []GlyphInstance {
	dot := fixed.P(x, y)
	prev := rune(-1)
	for _, r := range s {
		if prev >= 0 {
			dot.X += c.face.Kern(prev, r)
		}
		e := c.get(r)
		if e.mask != nil {
			origin := image.Pt(dot.X.Round(), dot.Y.Round())
			dst = append(dst, GlyphInstance{
				Dst:   e.bounds.Add(origin),
				Mask:  e.mask,
				Color: col,
				Clip:  clip,
				Depth: depth,
			})
		}
		dot.X += e.advance
		prev = r
	}
	return dst
}
