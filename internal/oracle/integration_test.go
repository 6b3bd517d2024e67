package oracle

import (
	"context"
	"testing"

	"github.com/cwbudde/deepdream/internal/dream"
	"github.com/cwbudde/deepdream/internal/resample"
)

// Exercises the full cascade with the real oracle and resampler.
func TestFeatureBankDrivesOctaveCascade(t *testing.T) {
	fb, err := New(Config{Layers: map[string]float64{"edges": 1.0, "texture": 1.5}, Filters: 4, Seed: 11})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cfg := dream.Config{Octaves: 2, ScaleRatio: 1.4, IterationsPerOctave: 3, StepSize: 0.01, MaxLoss: 0}
	runner, err := dream.NewRunner(fb, resample.New(), cfg)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	original := noiseImage(48, 48, 0.7)
	octaveShapes := []dream.Shape{}
	runner.OnOctave = func(octave int, shape dream.Shape, img *dream.Tensor) error {
		octaveShapes = append(octaveShapes, shape)
		return nil
	}

	out, err := runner.Run(context.Background(), original.Clone())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Shape() != original.Shape() {
		t.Errorf("Final shape %v, want %v", out.Shape(), original.Shape())
	}
	if len(octaveShapes) != 3 {
		t.Fatalf("Expected 3 octaves, got %d", len(octaveShapes))
	}
	if octaveShapes[2] != original.Shape() {
		t.Errorf("Last octave %v, want original %v", octaveShapes[2], original.Shape())
	}

	// The structured input must have been visibly pushed by ascent
	changed := false
	for i := range out.Data {
		if out.Data[i] != original.Data[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("Pipeline output is identical to input despite non-zero gradients")
	}
}
