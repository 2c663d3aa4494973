package infra

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// writePNG writes a w x h PNG with a transparent left half.
func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= w/2 {
				img.Set(x, y, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return path
}

func decodeJPEG(t *testing.T, encoded string) image.Image {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return img
}

func TestEncodeImage_Downscales(t *testing.T) {
	path := writePNG(t, t.TempDir(), "wide.png", 1600, 900)

	encoded, err := EncodeImage(path, 768, 768)
	require.NoError(t, err)

	img := decodeJPEG(t, encoded)
	assert.Equal(t, 768, img.Bounds().Dx())
	assert.Equal(t, 432, img.Bounds().Dy())
}

func TestEncodeImage_KeepsSmallImages(t *testing.T) {
	path := writePNG(t, t.TempDir(), "small.png", 120, 80)

	encoded, err := EncodeImage(path, 768, 768)
	require.NoError(t, err)

	img := decodeJPEG(t, encoded)
	assert.Equal(t, image.Rect(0, 0, 120, 80), img.Bounds())
}

func TestEncodeImage_FlattensOntoWhite(t *testing.T) {
	path := writePNG(t, t.TempDir(), "alpha.png", 64, 64)

	encoded, err := EncodeImage(path, 0, 0)
	require.NoError(t, err)

	r, g, b, _ := decodeJPEG(t, encoded).At(2, 32).RGBA()
	// transparent pixels become (near) white, not black
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestEncodeImage_Corrupt(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 50, 50)
	data, err := os.ReadFile(good)
	require.NoError(t, err)

	truncated := filepath.Join(dir, "truncated.png")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)/2], 0600))

	garbage := filepath.Join(dir, "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not an image"), 0600))

	for _, path := range []string{truncated, garbage, filepath.Join(dir, "missing.png")} {
		_, err := EncodeImage(path, 768, 768)
		assert.ErrorIs(t, err, domain.ErrCorruptImage, path)
	}
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		maxW, maxH int
		wantW      int
		wantH      int
	}{
		{"inside", 100, 50, 768, 768, 100, 50},
		{"wide", 1920, 1080, 768, 768, 768, 432},
		{"tall", 1000, 2000, 768, 768, 384, 768},
		{"unbounded", 5000, 5000, 0, 0, 5000, 5000},
		{"sliver", 10000, 1, 100, 100, 100, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := fitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}
