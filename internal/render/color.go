package render

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Color is linear-light RGBA with premultiplied alpha, each channel in [0,1].
type Color struct {
	R, G, B, A float64
}

// Transparent is the zero color.
var Transparent = Color{}

// ParseColor converts an sRGB hex color (#rgb, #rrggbb or #rrggbbaa) to
// linear premultiplied form.
func ParseColor(hex string) (Color, error) {
	alpha := 1.0
	rgb := hex
	if len(hex) == 9 && hex[0] == '#' {
		a, err := strconv.ParseUint(hex[7:9], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("invalid alpha in color %q: %w", hex, err)
		}
		alpha = float64(a) / 255
		rgb = hex[:7]
	}

	c, err := colorful.Hex(rgb)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.LinearRgb()
	return Color{R: r * alpha, G: g * alpha, B: b * alpha, A: alpha}, nil
}

// Scale multiplies every channel, used for opacity on premultiplied colors.
func (c Color) Scale(f float64) Color {
	return Color{R: c.R * f, G: c.G * f, B: c.B * f, A: c.A * f}
}

// Over composites c over dst.
func (c Color) Over(dst Color) Color {
	k := 1 - c.A
	return Color{R: c.R + dst.R*k, G: c.G + dst.G*k, B: c.B + dst.B*k, A: c.A + dst.A*k}
}

const encodeLUTSize = 4096

var (
	lutOnce   sync.Once
	encodeLUT [encodeLUTSize + 1]uint8
	decodeLUT [256]float64
)

func initLUTs() {
	lutOnce.Do(func() {
		for i := range encodeLUT {
			v := float64(i) / encodeLUTSize
			s := colorful.LinearRgb(v, v, v).Clamped()
			encodeLUT[i] = uint8(math.Round(s.R * 255))
		}
		for i := range decodeLUT {
			v := float64(i) / 255
			r, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
			decodeLUT[i] = r
		}
	})
}

// encodeChannel converts a linear channel in [0,1] to an sRGB byte.
func encodeChannel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return encodeLUT[int(v*encodeLUTSize+0.5)]
}

// decodeChannel converts an sRGB byte to a linear channel.
func decodeChannel(b uint8) float64 {
	return decodeLUT[b]
}

// colorCache memoizes parsed style colors for a pipeline. Invalid colors
// render transparent.
type colorCache map[string]Color

func (cc colorCache) get(hex string) Color {
	if hex == "" {
		return Transparent
	}
	if c, ok := cc[hex]; ok {
		return c
	}
	c, err := ParseColor(hex)
	if err != nil {
		c = Transparent
	}
	cc[hex] = c
	return c
}
