package infra

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

// JPEGQuality is the quality images are re-encoded with before upload.
const JPEGQuality = 85

// EncodeImage fully decodes the image at path, flattens it onto white,
// downsizes it to fit maxWidth x maxHeight (only when larger, keeping the
// aspect ratio) and returns it as base64 JPEG. Unreadable or truncated
// files fail with domain.ErrCorruptImage. A zero bound disables resizing
// along that axis.
func EncodeImage(path string, maxWidth, maxHeight int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrCorruptImage, path, err)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrCorruptImage, path, err)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return "", fmt.Errorf("%w: %s: empty image", domain.ErrCorruptImage, path)
	}

	// flatten alpha onto white so JPEG does not turn it black
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgb, rgb.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(rgb, rgb.Bounds(), src, bounds.Min, draw.Over)

	var out image.Image = rgb
	if w, h := fitWithin(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight); w != bounds.Dx() || h != bounds.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), rgb, rgb.Bounds(), draw.Src, nil)
		out = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// fitWithin returns the largest size with the same aspect ratio that fits
// in maxW x maxH. Sizes already inside the box are returned unchanged.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale >= 1.0 {
		return w, h
	}

	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
