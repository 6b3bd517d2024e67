package dream

import (
	"fmt"
	"math"
)

// Config holds the caller-supplied parameters of a dream run.
type Config struct {
	// Octaves is the number of additional, smaller scales below the original
	// resolution. The run always processes Octaves+1 shapes.
	Octaves int

	// ScaleRatio is the per-octave shrink factor, must be > 1.
	ScaleRatio float64

	// IterationsPerOctave is the gradient ascent step budget per octave.
	IterationsPerOctave int

	// StepSize scales the (pre-normalized) gradient on each update.
	StepSize float64

	// MaxLoss soft-stops an octave's ascent once the reported loss exceeds
	// it, guarding against over-saturated output. 0 disables the guard.
	MaxLoss float64
}

// Validate rejects invalid configurations before any oracle or resampler call.
func (c Config) Validate() error {
	if c.Octaves < 0 {
		return fmt.Errorf("octaves must be >= 0, got %d", c.Octaves)
	}
	if c.ScaleRatio <= 1 {
		return fmt.Errorf("scale ratio must be > 1, got %g", c.ScaleRatio)
	}
	if c.IterationsPerOctave <= 0 {
		return fmt.Errorf("iterations per octave must be positive, got %d", c.IterationsPerOctave)
	}
	if c.StepSize <= 0 {
		return fmt.Errorf("step size must be positive, got %g", c.StepSize)
	}
	if c.MaxLoss < 0 {
		return fmt.Errorf("max loss must be >= 0, got %g", c.MaxLoss)
	}
	return nil
}

// OctaveShapes builds the octave shape sequence for an original shape:
// octaves additional shapes shrunk by scaleRatio^i with integer-truncated
// dimensions, ordered smallest first. The final element is the original shape
// itself, not a re-derived approximation, so the last octave always runs at
// true input resolution.
func OctaveShapes(original Shape, octaves int, scaleRatio float64) ([]Shape, error) {
	if !original.Valid() {
		return nil, fmt.Errorf("invalid original shape %s", original)
	}
	if octaves < 0 {
		return nil, fmt.Errorf("octaves must be >= 0, got %d", octaves)
	}
	if scaleRatio <= 1 {
		return nil, fmt.Errorf("scale ratio must be > 1, got %g", scaleRatio)
	}

	shapes := make([]Shape, octaves+1)
	shapes[octaves] = original
	for i := 1; i <= octaves; i++ {
		factor := math.Pow(scaleRatio, float64(i))
		s := Shape{
			H: int(float64(original.H) / factor),
			W: int(float64(original.W) / factor),
		}
		if !s.Valid() {
			return nil, fmt.Errorf("octave %d shape %s collapses below 1 pixel (ratio %g)", i, s, scaleRatio)
		}
		shapes[octaves-i] = s
	}

	// Integer truncation can collapse adjacent shapes for small images with
	// ratios near 1; such a sequence is degenerate and rejected.
	for i := 1; i < len(shapes); i++ {
		if shapes[i].H <= shapes[i-1].H || shapes[i].W <= shapes[i-1].W {
			return nil, fmt.Errorf("octave shapes not strictly increasing: %s -> %s (ratio %g too close to 1 for %s)",
				shapes[i-1], shapes[i], scaleRatio, original)
		}
	}
	return shapes, nil
}
