package resample

import (
	"math"
	"testing"

	"github.com/cwbudde/deepdream/internal/dream"
)

func gradientTensor(h, w int) *dream.Tensor {
	t := dream.NewTensor(h, w, dream.Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < dream.Channels; c++ {
				t.Set(y, x, c, float64(y*w+x)/float64(h*w))
			}
		}
	}
	return t
}

func TestResizeSameShapeIsIdentity(t *testing.T) {
	r := New()
	img := gradientTensor(20, 30)

	out, err := r.Resize(img, img.Shape())
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	for i := range img.Data {
		if out.Data[i] != img.Data[i] {
			t.Fatalf("Element %d changed: %g -> %g", i, img.Data[i], out.Data[i])
		}
	}
	// Must be a copy, not an alias
	out.Data[0] = 42
	if img.Data[0] == 42 {
		t.Error("Same-shape resize aliases the input")
	}
}

func TestResizeDimensions(t *testing.T) {
	tests := []struct {
		name   string
		src    dream.Shape
		target dream.Shape
	}{
		{"downscale", dream.Shape{H: 100, W: 100}, dream.Shape{H: 37, W: 53}},
		{"upscale", dream.Shape{H: 20, W: 20}, dream.Shape{H: 61, W: 47}},
		{"to single pixel", dream.Shape{H: 8, W: 8}, dream.Shape{H: 1, W: 1}},
		{"from single pixel", dream.Shape{H: 1, W: 1}, dream.Shape{H: 16, W: 16}},
	}

	r := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Resize(gradientTensor(tt.src.H, tt.src.W), tt.target)
			if err != nil {
				t.Fatalf("Resize failed: %v", err)
			}
			if out.Shape() != tt.target {
				t.Errorf("Shape = %v, want %v", out.Shape(), tt.target)
			}
			if out.C != dream.Channels {
				t.Errorf("Channels = %d, want %d", out.C, dream.Channels)
			}
		})
	}
}

func TestResizeConstantImageStaysConstant(t *testing.T) {
	img := dream.NewTensor(40, 40, dream.Channels)
	for i := range img.Data {
		img.Data[i] = 0.6
	}

	out, err := New().Resize(img, dream.Shape{H: 23, W: 31})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-0.6) > 1e-12 {
			t.Fatalf("Element %d = %g, want 0.6", i, v)
		}
	}
}

func TestResizePreservesValueRange(t *testing.T) {
	// Bilinear interpolation is a convex combination, so output values never
	// leave the input's range.
	img := gradientTensor(50, 50)
	out, err := New().Resize(img, dream.Shape{H: 120, W: 80})
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	for i, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("Element %d = %g outside [0,1]", i, v)
		}
	}
}

func TestResizeRejectsInvalidInput(t *testing.T) {
	r := New()
	if _, err := r.Resize(nil, dream.Shape{H: 10, W: 10}); err == nil {
		t.Error("Expected error for nil image")
	}
	if _, err := r.Resize(gradientTensor(10, 10), dream.Shape{H: 0, W: 10}); err == nil {
		t.Error("Expected error for zero-height target")
	}
	if _, err := r.Resize(gradientTensor(10, 10), dream.Shape{H: 10, W: -3}); err == nil {
		t.Error("Expected error for negative-width target")
	}
}
