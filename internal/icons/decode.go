package icons

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"

	"github.com/jmylchreest/glint/internal/model"
)

// ErrUnsupported is returned for formats without a decoder.
var ErrUnsupported = errors.New("unsupported icon format")

// ErrInvalidImageData is returned for an image-data hint whose geometry does
// not match its payload.
var ErrInvalidImageData = errors.New("invalid image data")

// ErrTooLarge is returned for images whose header exceeds maxDimension.
var ErrTooLarge = errors.New("icon too large")

// maxDimension bounds decoded icons before scaling.
const maxDimension = 4096

type codec struct {
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
}

var codecs = map[string]codec{
	"image/png":  {png.Decode, png.DecodeConfig},
	"image/jpeg": {jpeg.Decode, jpeg.DecodeConfig},
	"image/gif":  {gif.Decode, gif.DecodeConfig},
	"image/bmp":  {bmp.Decode, bmp.DecodeConfig},
	"image/webp": {webp.Decode, webp.DecodeConfig},
}

// Decode sniffs data and decodes it with the matching decoder. The header is
// checked against maxDimension before any pixels are decoded.
func Decode(data []byte) (image.Image, error) {
	mt := mimetype.Detect(data)
	c, ok := codecs[mt.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mt.String())
	}

	cfg, err := c.decodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s header: %w", mt.String(), err)
	}
	if cfg.Width > maxDimension || cfg.Height > maxDimension {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrTooLarge, cfg.Width, cfg.Height, maxDimension)
	}

	img, err := c.decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mt.String(), err)
	}
	return img, nil
}

// FromRaw converts an image-data hint (8 bits per sample, 3 or 4 channels)
// to an image.
func FromRaw(raw *model.RawImage) (*image.NRGBA, error) {
	if raw == nil {
		return nil, ErrInvalidImageData
	}
	if raw.Width <= 0 || raw.Height <= 0 || raw.Width > maxDimension || raw.Height > maxDimension {
		return nil, fmt.Errorf("%w: size %dx%d", ErrInvalidImageData, raw.Width, raw.Height)
	}
	if raw.BitsPerSample != 8 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrInvalidImageData, raw.BitsPerSample)
	}
	channels := raw.Channels
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidImageData, channels)
	}
	if raw.HasAlpha != (channels == 4) {
		return nil, fmt.Errorf("%w: alpha flag does not match %d channels", ErrInvalidImageData, channels)
	}
	if raw.RowStride < raw.Width*channels {
		return nil, fmt.Errorf("%w: row stride %d too small", ErrInvalidImageData, raw.RowStride)
	}
	// The last row may be unpadded.
	need := raw.RowStride*(raw.Height-1) + raw.Width*channels
	if len(raw.Data) < need {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidImageData, len(raw.Data), need)
	}

	img := image.NewNRGBA(image.Rect(0, 0, raw.Width, raw.Height))
	for y := 0; y < raw.Height; y++ {
		src := raw.Data[y*raw.RowStride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < raw.Width; x++ {
			s := src[x*channels:]
			d := dst[x*4 : x*4+4]
			d[0], d[1], d[2] = s[0], s[1], s[2]
			if channels == 4 {
				d[3] = s[3]
			} else {
				d[3] = 0xff
			}
		}
	}
	return img, nil
}

// Fit scales img down to fit a size x size box, keeping its aspect ratio.
// Smaller images are returned unscaled.
func Fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if size <= 0 || (b.Dx() <= size && b.Dy() <= size) {
		return img
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}
