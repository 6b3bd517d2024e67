// Package resample provides float-precision image tensor resizing for the
// octave pipeline. The pipeline compares tensors resized for scale
// transitions against tensors resized for detail-delta computation, so a
// single kernel must serve both and resizing to the source shape must be the
// identity; both properties hold here and neither is guaranteed by the
// quantized 8/16-bit image scalers in common use.
package resample

import (
	"fmt"

	"github.com/cwbudde/deepdream/internal/dream"
)

// Bilinear resizes H×W×C float64 tensors with bilinear interpolation and
// edge-clamped sampling. The zero value is ready to use.
type Bilinear struct{}

// New returns a bilinear resampler.
func New() *Bilinear {
	return &Bilinear{}
}

// Resize returns img scaled to the target spatial shape. The channel count is
// preserved. Resizing to the source shape returns an identical copy.
func (b *Bilinear) Resize(img *dream.Tensor, shape dream.Shape) (*dream.Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("image is required")
	}
	if !shape.Valid() {
		return nil, fmt.Errorf("invalid target shape %s", shape)
	}
	if shape == img.Shape() {
		return img.Clone(), nil
	}

	out := dream.NewTensor(shape.H, shape.W, img.C)
	scaleY := float64(img.H) / float64(shape.H)
	scaleX := float64(img.W) / float64(shape.W)

	for y := 0; y < shape.H; y++ {
		// Map destination pixel centers onto the source grid.
		sy := (float64(y)+0.5)*scaleY - 0.5
		y0, fy := splitCoord(sy, img.H)
		y1 := clampIndex(y0+1, img.H)

		for x := 0; x < shape.W; x++ {
			sx := (float64(x)+0.5)*scaleX - 0.5
			x0, fx := splitCoord(sx, img.W)
			x1 := clampIndex(x0+1, img.W)

			for c := 0; c < img.C; c++ {
				top := lerp(img.At(y0, x0, c), img.At(y0, x1, c), fx)
				bottom := lerp(img.At(y1, x0, c), img.At(y1, x1, c), fx)
				out.Set(y, x, c, lerp(top, bottom, fy))
			}
		}
	}
	return out, nil
}

// splitCoord splits a continuous source coordinate into an integer base index
// clamped to [0, n-1] and the fractional interpolation weight.
func splitCoord(s float64, n int) (int, float64) {
	if s <= 0 {
		return 0, 0
	}
	i := int(s)
	if i >= n-1 {
		return n - 1, 0
	}
	return i, s - float64(i)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
