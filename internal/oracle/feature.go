// Package oracle provides the default loss-gradient oracle for the dream
// pipeline: a bank of named convolutional feature layers whose weighted mean
// squared activation is the loss to maximize. Any other oracle (e.g. one
// backed by a full pretrained network) can replace it behind dream.Oracle.
package oracle

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/deepdream/internal/dream"
)

// gradEpsilon floors the mean-absolute-gradient divisor so step size keeps a
// comparable visual effect independent of raw gradient magnitude.
const gradEpsilon = 1e-7

// Config describes a feature bank: named layers with non-negative weights,
// plus filter bank geometry. Zero-valued fields fall back to defaults.
type Config struct {
	// Layers maps a layer name to its loss contribution weight.
	Layers map[string]float64

	// Filters is the number of filters per layer (default 8).
	Filters int

	// KernelSize is the square filter side length, odd (default 3).
	KernelSize int

	// Seed makes filter initialization reproducible.
	Seed int64
}

// DefaultLayers returns the default layer weighting.
func DefaultLayers() map[string]float64 {
	return map[string]float64{
		"mixed4": 1.0,
		"mixed5": 1.5,
		"mixed6": 2.0,
		"mixed7": 2.5,
	}
}

// layer is one named filter bank. filters is (k*k*C) × Filters; each column
// is a zero-mean filter so constant regions produce no activation.
type layer struct {
	name    string
	weight  float64
	filters *mat.Dense
}

// FeatureBank implements dream.Oracle. It is stateless across calls: loss and
// gradient are pure functions of the image and the fixed filter banks.
type FeatureBank struct {
	layers []layer
	kernel int
}

// New builds a feature bank from the config. Filter banks are drawn from a
// seeded normal distribution, in sorted layer-name order, so identical
// configs produce identical oracles.
func New(cfg Config) (*FeatureBank, error) {
	if len(cfg.Layers) == 0 {
		cfg.Layers = DefaultLayers()
	}
	if cfg.Filters == 0 {
		cfg.Filters = 8
	}
	if cfg.KernelSize == 0 {
		cfg.KernelSize = 3
	}

	if cfg.Filters < 0 {
		return nil, fmt.Errorf("filters must be positive, got %d", cfg.Filters)
	}
	if cfg.KernelSize < 1 || cfg.KernelSize%2 == 0 {
		return nil, fmt.Errorf("kernel size must be odd and positive, got %d", cfg.KernelSize)
	}
	for name, w := range cfg.Layers {
		if w < 0 {
			return nil, fmt.Errorf("layer %q has negative weight %g", name, w)
		}
	}

	names := make([]string, 0, len(cfg.Layers))
	for name := range cfg.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	rng := rand.New(rand.NewSource(cfg.Seed))
	patch := cfg.KernelSize * cfg.KernelSize * dream.Channels
	std := 1.0 / math.Sqrt(float64(patch))

	fb := &FeatureBank{kernel: cfg.KernelSize}
	for _, name := range names {
		filters := mat.NewDense(patch, cfg.Filters, nil)
		for f := 0; f < cfg.Filters; f++ {
			var sum float64
			for i := 0; i < patch; i++ {
				v := rng.NormFloat64() * std
				filters.Set(i, f, v)
				sum += v
			}
			// Center each filter to zero mean: flat image regions must not
			// activate, only structure.
			mean := sum / float64(patch)
			for i := 0; i < patch; i++ {
				filters.Set(i, f, filters.At(i, f)-mean)
			}
		}
		fb.layers = append(fb.layers, layer{name: name, weight: cfg.Layers[name], filters: filters})
	}
	return fb, nil
}

// Layers returns the configured layer names in evaluation order.
func (fb *FeatureBank) Layers() []string {
	names := make([]string, len(fb.layers))
	for i, l := range fb.layers {
		names[i] = l.name
	}
	return names
}

// Evaluate computes the weighted mean squared activation over all layers and
// its gradient with respect to the image. The gradient is normalized by
// max(mean(|g|), 1e-7). The returned tensor has the input's shape; the input
// is not modified.
func (fb *FeatureBank) Evaluate(img *dream.Tensor) (float64, *dream.Tensor, error) {
	if img == nil {
		return 0, nil, fmt.Errorf("image is required")
	}
	if img.C != dream.Channels {
		return 0, nil, fmt.Errorf("expected %d channels, got %d", dream.Channels, img.C)
	}
	if !img.Shape().Valid() {
		return 0, nil, fmt.Errorf("invalid image shape %s", img.Shape())
	}

	patches := fb.im2col(img)
	grad := dream.NewTensor(img.H, img.W, img.C)

	var loss float64
	for _, l := range fb.layers {
		_, numFilters := l.filters.Dims()

		// Forward pass: activations = patches × filters, one row per pixel.
		var act mat.Dense
		act.Mul(patches, l.filters)

		n := float64(img.H * img.W * numFilters)
		fro := mat.Norm(&act, 2)
		loss += l.weight * fro * fro / n

		// Backward pass: d(mean sq act)/d(act) = 2·act/n, mapped back onto
		// image positions through the transposed filter bank.
		var dAct mat.Dense
		dAct.Scale(2*l.weight/n, &act)

		var dPatches mat.Dense
		dPatches.Mul(&dAct, l.filters.T())

		fb.col2im(&dPatches, grad)
	}

	normalizeGradient(grad)
	return loss, grad, nil
}

// im2col flattens every same-padded k×k×C neighborhood into one row of a
// (H·W) × (k·k·C) matrix. Out-of-bounds taps replicate the nearest edge
// pixel: border patches of a flat region stay flat, so the zero-mean filters
// see no artificial structure there.
func (fb *FeatureBank) im2col(img *dream.Tensor) *mat.Dense {
	k := fb.kernel
	pad := k / 2
	patch := k * k * img.C

	m := mat.NewDense(img.H*img.W, patch, nil)
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			row := y*img.W + x
			for ky := 0; ky < k; ky++ {
				sy := clamp(y+ky-pad, img.H)
				for kx := 0; kx < k; kx++ {
					sx := clamp(x+kx-pad, img.W)
					col := (ky*k + kx) * img.C
					for c := 0; c < img.C; c++ {
						m.Set(row, col+c, img.At(sy, sx, c))
					}
				}
			}
		}
	}
	return m
}

// col2im scatter-adds patch-space gradients back onto image positions,
// accumulating into grad. It is the exact adjoint of im2col: taps that read
// a clamped edge pixel deposit their gradient onto that same pixel.
func (fb *FeatureBank) col2im(dPatches *mat.Dense, grad *dream.Tensor) {
	k := fb.kernel
	pad := k / 2

	for y := 0; y < grad.H; y++ {
		for x := 0; x < grad.W; x++ {
			row := y*grad.W + x
			for ky := 0; ky < k; ky++ {
				sy := clamp(y+ky-pad, grad.H)
				for kx := 0; kx < k; kx++ {
					sx := clamp(x+kx-pad, grad.W)
					col := (ky*k + kx) * grad.C
					for c := 0; c < grad.C; c++ {
						grad.Set(sy, sx, c, grad.At(sy, sx, c)+dPatches.At(row, col+c))
					}
				}
			}
		}
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func normalizeGradient(grad *dream.Tensor) {
	var sum float64
	for _, v := range grad.Data {
		sum += math.Abs(v)
	}
	denom := math.Max(sum/float64(len(grad.Data)), gradEpsilon)
	for i := range grad.Data {
		grad.Data[i] /= denom
	}
}
