// Package imgio converts between image files and dream tensors. Tensors use
// normalized [0,1] channel values in-pipeline; saving denormalizes to [0,255]
// and clamps, since ascended images routinely overshoot the displayable range.
package imgio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	_ "image/jpeg" // register JPEG decoding

	"github.com/cwbudde/deepdream/internal/dream"
)

// Load decodes a PNG or JPEG file into a normalized tensor.
func Load(path string) (*dream.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(img), nil
}

// FromImage converts any image.Image into an H×W×3 tensor with values in [0,1].
func FromImage(img image.Image) *dream.Tensor {
	bounds := img.Bounds()
	t := dream.NewTensor(bounds.Dy(), bounds.Dx(), dream.Channels)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			ty := y - bounds.Min.Y
			tx := x - bounds.Min.X
			t.Set(ty, tx, 0, float64(r)/65535.0)
			t.Set(ty, tx, 1, float64(g)/65535.0)
			t.Set(ty, tx, 2, float64(b)/65535.0)
		}
	}
	return t
}

// ToNRGBA denormalizes a tensor to 8-bit sRGB, clamping each channel to
// [0,255]. Alpha is fully opaque.
func ToNRGBA(t *dream.Tensor) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.W, t.H))
	for y := 0; y < t.H; y++ {
		for x := 0; x < t.W; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: clampByte(t.At(y, x, 0)),
				G: clampByte(t.At(y, x, 1)),
				B: clampByte(t.At(y, x, 2)),
				A: 255,
			})
		}
	}
	return img
}

// Save writes a tensor to disk as PNG.
func Save(path string, t *dream.Tensor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, ToNRGBA(t)); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v*255))))
}
