package dream

import (
	"context"
	"fmt"
	"log/slog"
)

// StepFunc observes an applied ascent step within a given octave.
type StepFunc func(octave, step int, loss float64)

// OctaveFunc observes the corrected working image at the end of an octave.
// A non-nil error aborts the run.
type OctaveFunc func(octave int, shape Shape, img *Tensor) error

// Runner drives the multi-scale gradient ascent pipeline: it resolves the
// octave shape sequence, runs bounded ascent at each scale and reinjects the
// high-frequency detail lost to downsampling before advancing to the next,
// larger scale.
type Runner struct {
	oracle    Oracle
	resampler Resampler
	config    Config

	// OnStep, if set, is called for every applied ascent step.
	OnStep StepFunc

	// OnOctave, if set, is called with each octave's corrected image, e.g.
	// to persist per-octave artifacts.
	OnOctave OctaveFunc
}

// NewRunner validates the configuration and returns a pipeline runner.
func NewRunner(oracle Oracle, resampler Resampler, config Config) (*Runner, error) {
	if oracle == nil {
		return nil, fmt.Errorf("oracle is required")
	}
	if resampler == nil {
		return nil, fmt.Errorf("resampler is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Runner{oracle: oracle, resampler: resampler, config: config}, nil
}

// Config returns the runner's configuration.
func (r *Runner) Config() Config {
	return r.config
}

// Run executes the full octave cascade on original and returns the final
// image at the original resolution. Cancellation is checked between octaves;
// on cancellation the best image produced so far is returned together with
// the context's error.
func (r *Runner) Run(ctx context.Context, original *Tensor) (*Tensor, error) {
	return r.RunFrom(ctx, original, nil, 0)
}

// RunFrom resumes the cascade at octave index startOctave with the given
// working image (at the previous octave's resolution). A nil working image
// with startOctave 0 starts a fresh run from original.
//
// The shrunk baseline is always recomputed by resizing the original image,
// never by refining the previous baseline incrementally; the visual output
// depends on this exact behavior.
func (r *Runner) RunFrom(ctx context.Context, original, working *Tensor, startOctave int) (*Tensor, error) {
	if original == nil {
		return nil, fmt.Errorf("original image is required")
	}
	if original.C != Channels {
		return nil, fmt.Errorf("expected %d channels, got %d", Channels, original.C)
	}

	shapes, err := OctaveShapes(original.Shape(), r.config.Octaves, r.config.ScaleRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to derive octave shapes: %w", err)
	}
	if startOctave < 0 || startOctave > len(shapes)-1 {
		return nil, fmt.Errorf("start octave %d out of range [0,%d]", startOctave, len(shapes)-1)
	}

	slog.Info("Starting octave cascade",
		"octaves", len(shapes), "start", startOctave,
		"smallest", shapes[0], "largest", shapes[len(shapes)-1])

	// Baseline for detail reinjection: the original roundtripped through the
	// resolution the working image last lived at.
	baselineShape := shapes[0]
	if startOctave > 0 {
		baselineShape = shapes[startOctave-1]
	}
	shrunk, err := r.resampler.Resize(original, baselineShape)
	if err != nil {
		return nil, fmt.Errorf("failed to build shrunk baseline: %w", err)
	}

	img := working
	if img == nil {
		img = original
	}

	for octave := startOctave; octave < len(shapes); octave++ {
		select {
		case <-ctx.Done():
			slog.Info("Run cancelled between octaves", "octave", octave)
			return img, ctx.Err()
		default:
		}

		shape := shapes[octave]
		slog.Debug("Processing octave", "octave", octave, "shape", shape)

		img, err = r.resampler.Resize(img, shape)
		if err != nil {
			return nil, fmt.Errorf("octave %d: failed to resize working image: %w", octave, err)
		}

		var stepHook ProgressFunc
		if r.OnStep != nil {
			o := octave
			stepHook = func(step int, loss float64) { r.OnStep(o, step, loss) }
		}
		img, err = Ascend(r.oracle, img, r.config.IterationsPerOctave, r.config.StepSize, r.config.MaxLoss, stepHook)
		if err != nil {
			return nil, fmt.Errorf("octave %d: %w", octave, err)
		}

		// Detail reinjection: the corrected image is the resized original plus
		// whatever ascent added beyond the baseline roundtrip. Algebraically
		// identical to img + (original − baseline), but summed in this order a
		// no-op ascent leaves the resized original bit-exact: the delta is
		// computed between two identical tensors and is exactly zero.
		upscaledShrunk, err := r.resampler.Resize(shrunk, shape)
		if err != nil {
			return nil, fmt.Errorf("octave %d: failed to upscale shrunk baseline: %w", octave, err)
		}
		sameSizeOriginal, err := r.resampler.Resize(original, shape)
		if err != nil {
			return nil, fmt.Errorf("octave %d: failed to resize original: %w", octave, err)
		}
		ascentDelta, err := img.Sub(upscaledShrunk)
		if err != nil {
			return nil, fmt.Errorf("octave %d: failed to compute ascent delta: %w", octave, err)
		}
		img = sameSizeOriginal
		if err := img.Add(ascentDelta); err != nil {
			return nil, fmt.Errorf("octave %d: failed to reinject detail: %w", octave, err)
		}

		shrunk, err = r.resampler.Resize(original, shape)
		if err != nil {
			return nil, fmt.Errorf("octave %d: failed to recompute shrunk baseline: %w", octave, err)
		}

		if r.OnOctave != nil {
			if err := r.OnOctave(octave, shape, img); err != nil {
				return nil, fmt.Errorf("octave %d: octave hook failed: %w", octave, err)
			}
		}
	}

	slog.Info("Octave cascade complete", "shape", img.Shape())
	return img, nil
}
