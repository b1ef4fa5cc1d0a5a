package icons

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/glint/internal/model"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeIcon(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pngBytes(t, size, size, color.NRGBA{R: 255, A: 255}), 0o644))
}

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, filepath.Join(dir, "icons", "hicolor", "32x32", "apps", "mail.png"), 32)
	writeIcon(t, filepath.Join(dir, "icons", "hicolor", "64x64", "apps", "mail.png"), 64)
	writeIcon(t, filepath.Join(dir, "icons", "hicolor", "128x128", "apps", "mail.png"), 128)
	writeIcon(t, filepath.Join(dir, "icons", "Papirus", "16x16", "apps", "term.png"), 16)
	writeIcon(t, filepath.Join(dir, "pixmaps", "legacy.png"), 24)
	abs := filepath.Join(dir, "abs.png")
	writeIcon(t, abs, 8)

	r := NewResolverWithDirs("Papirus", []string{dir})

	tests := []struct {
		name string
		ref  string
		size int
		want string
	}{
		{"smallest at or above request", "mail", 48, filepath.Join(dir, "icons", "hicolor", "64x64", "apps", "mail.png")},
		{"exact size", "mail", 128, filepath.Join(dir, "icons", "hicolor", "128x128", "apps", "mail.png")},
		{"largest below when none above", "mail", 256, filepath.Join(dir, "icons", "hicolor", "128x128", "apps", "mail.png")},
		{"configured theme", "term", 48, filepath.Join(dir, "icons", "Papirus", "16x16", "apps", "term.png")},
		{"pixmaps fallback", "legacy", 48, filepath.Join(dir, "pixmaps", "legacy.png")},
		{"absolute path", abs, 48, abs},
		{"file uri", "file://" + abs, 48, abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := r.Resolve("nope", 48)
		assert.ErrorIs(t, err, ErrNotFound)
		// Cached miss.
		_, err = r.Resolve("nope", 48)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = r.Resolve("", 48)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = r.Resolve(filepath.Join(dir, "missing.png"), 48)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngBytes(t, 4, 3, color.White))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())

	_, err = Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

// pngHeader returns a PNG signature and IHDR chunk with no image data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6 // 8-bit RGBA

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecode_RejectsOversizedHeader(t *testing.T) {
	_, err := Decode(pngHeader(100000, 100000))
	assert.ErrorIs(t, err, ErrTooLarge)

	// Within bounds the header passes and the missing pixel data fails the
	// decode instead.
	_, err = Decode(pngHeader(16, 16))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooLarge)
}

func TestFromRaw(t *testing.T) {
	tests := []struct {
		name    string
		raw     *model.RawImage
		wantErr bool
		want    color.NRGBA
	}{
		{
			name: "rgb with padded stride",
			raw: &model.RawImage{
				Width: 2, Height: 2, RowStride: 8, BitsPerSample: 8, Channels: 3,
				Data: []byte{10, 20, 30, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6},
			},
			want: color.NRGBA{R: 10, G: 20, B: 30, A: 255},
		},
		{
			name: "rgba",
			raw: &model.RawImage{
				Width: 1, Height: 1, RowStride: 4, HasAlpha: true, BitsPerSample: 8, Channels: 4,
				Data: []byte{1, 2, 3, 128},
			},
			want: color.NRGBA{R: 1, G: 2, B: 3, A: 128},
		},
		{
			name:    "short payload",
			raw:     &model.RawImage{Width: 2, Height: 2, RowStride: 6, BitsPerSample: 8, Channels: 3, Data: []byte{1, 2, 3}},
			wantErr: true,
		},
		{
			name:    "alpha flag mismatch",
			raw:     &model.RawImage{Width: 1, Height: 1, RowStride: 3, HasAlpha: true, BitsPerSample: 8, Channels: 3, Data: []byte{1, 2, 3}},
			wantErr: true,
		},
		{
			name:    "16 bit samples",
			raw:     &model.RawImage{Width: 1, Height: 1, RowStride: 6, BitsPerSample: 16, Channels: 3, Data: make([]byte, 6)},
			wantErr: true,
		},
		{
			name:    "nil",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := FromRaw(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidImageData)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, img.NRGBAAt(0, 0))
		})
	}
}

func TestFit(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	assert.Same(t, small, Fit(small, 48))

	wide := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	got := Fit(wide, 48)
	assert.Equal(t, 48, got.Bounds().Dx())
	assert.Equal(t, 24, got.Bounds().Dy())
}

func TestLoader_SubmitAndResults(t *testing.T) {
	dir := t.TempDir()
	writeIcon(t, filepath.Join(dir, "icons", "hicolor", "256x256", "apps", "big.png"), 256)

	l := NewLoader(NewResolverWithDirs("hicolor", []string{dir}), 2, nil)
	assert.False(t, l.Submit(Request{ID: 1}), "stopped loader must reject")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Stop()

	require.True(t, l.Submit(Request{ID: 7, Gen: 3, Source: "big", Size: 48}))
	require.True(t, l.Submit(Request{ID: 8, Gen: 1, Source: "missing", Size: 48}))

	got := map[uint32]Result{}
	for len(got) < 2 {
		select {
		case res := <-l.Results():
			got[res.ID] = res
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for icon results")
		}
	}

	require.NoError(t, got[7].Err)
	assert.Equal(t, uint64(3), got[7].Gen)
	assert.Equal(t, 48, got[7].Image.Bounds().Dx())
	assert.ErrorIs(t, got[8].Err, ErrNotFound)
	assert.Nil(t, got[8].Image)
}
