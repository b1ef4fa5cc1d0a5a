package layout

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/jmylchreest/glint/internal/config"
)

// Measurer reports text metrics in pixels.
type Measurer interface {
	Advance(s string) float64
	LineHeight() float64
	Ascent() float64
}

// FaceMeasurer measures text with a font face. Like the face itself it is
// not safe for concurrent use.
type FaceMeasurer struct {
	face font.Face
}

// NewFaceMeasurer wraps a face.
func NewFaceMeasurer(face font.Face) *FaceMeasurer {
	return &FaceMeasurer{face: face}
}

// Face returns the wrapped face.
func (m *FaceMeasurer) Face() font.Face {
	return m.face
}

// Advance returns the width of s.
func (m *FaceMeasurer) Advance(s string) float64 {
	return fixedToFloat(font.MeasureString(m.face, s))
}

// LineHeight returns the recommended line height.
func (m *FaceMeasurer) LineHeight() float64 {
	return fixedToFloat(m.face.Metrics().Height)
}

// Ascent returns the distance from the top of a line to its baseline.
func (m *FaceMeasurer) Ascent() float64 {
	return fixedToFloat(m.face.Metrics().Ascent)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// FallbackFace is the bitmap face used when no vector font can be loaded.
func FallbackFace() font.Face {
	return basicfont.Face7x13
}

// LoadFace loads the configured font. An empty path uses Go Regular.
func LoadFace(lay config.LayoutConfig) (font.Face, error) {
	data := goregular.TTF
	if lay.Font != "" {
		b, err := os.ReadFile(config.ExpandPath(lay.Font))
		if err != nil {
			return nil, fmt.Errorf("failed to read font: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	size := lay.FontSize
	if size <= 0 || math.IsNaN(size) {
		size = 13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}
