package imgio

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/cwbudde/deepdream/internal/dream"
)

func TestFromImageNormalizes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 127, A: 255})

	tensor := FromImage(img)
	if tensor.Shape() != (dream.Shape{H: 2, W: 2}) {
		t.Fatalf("Shape = %v, want 2x2", tensor.Shape())
	}
	if tensor.At(0, 0, 0) != 1.0 {
		t.Errorf("R = %g, want 1.0", tensor.At(0, 0, 0))
	}
	if tensor.At(0, 0, 1) != 0.0 {
		t.Errorf("G = %g, want 0.0", tensor.At(0, 0, 1))
	}
	if math.Abs(tensor.At(0, 0, 2)-127.0/255.0) > 1e-3 {
		t.Errorf("B = %g, want ~%g", tensor.At(0, 0, 2), 127.0/255.0)
	}
}

func TestToNRGBAClampsOutOfRange(t *testing.T) {
	tensor := dream.NewTensor(1, 3, dream.Channels)
	// Overshooting values are common after gradient ascent
	tensor.Set(0, 0, 0, -0.5)
	tensor.Set(0, 1, 0, 1.7)
	tensor.Set(0, 2, 0, 0.5)

	img := ToNRGBA(tensor)
	if got := img.NRGBAAt(0, 0).R; got != 0 {
		t.Errorf("Negative value clamped to %d, want 0", got)
	}
	if got := img.NRGBAAt(1, 0).R; got != 255 {
		t.Errorf("Overshoot clamped to %d, want 255", got)
	}
	if got := img.NRGBAAt(2, 0).R; got != 128 {
		t.Errorf("Mid value = %d, want 128", got)
	}
	if got := img.NRGBAAt(0, 0).A; got != 255 {
		t.Errorf("Alpha = %d, want 255", got)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	tensor := dream.NewTensor(5, 7, dream.Channels)
	for i := range tensor.Data {
		tensor.Data[i] = float64(i%256) / 255.0
	}

	path := filepath.Join(t.TempDir(), "out.png")
	if err := Save(path, tensor); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Shape() != tensor.Shape() {
		t.Fatalf("Shape = %v, want %v", loaded.Shape(), tensor.Shape())
	}
	// PNG roundtrip is exact up to 8-bit quantization
	for i := range tensor.Data {
		if math.Abs(loaded.Data[i]-tensor.Data[i]) > 1.0/255.0 {
			t.Fatalf("Element %d = %g, want %g within 1/255", i, loaded.Data[i], tensor.Data[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}
}
