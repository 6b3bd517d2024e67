package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
	"github.com/cwbudde/deepdream/internal/imgio"
	"github.com/cwbudde/deepdream/internal/oracle"
	"github.com/cwbudde/deepdream/internal/resample"
	"github.com/spf13/cobra"
)

var (
	refPath     string
	outPath     string
	octaves     int
	scaleRatio  float64
	iters       int
	stepSize    float64
	maxLoss     float64
	seed        int64
	layersSpec  string
	saveOctaves bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single dream synthesis",
	Long: `Runs the octave cascade on a reference image and writes the final
image. With --save-octaves the intermediate per-octave images are written
next to the output.`,
	RunE: runDream,
}

func init() {
	runCmd.Flags().StringVar(&refPath, "ref", "", "Reference image path (required)")
	runCmd.Flags().StringVar(&outPath, "out", "out.png", "Output image path")
	runCmd.Flags().IntVar(&octaves, "octaves", 3, "Number of downscaled octaves below the original")
	runCmd.Flags().Float64Var(&scaleRatio, "scale", 1.4, "Scale ratio between octaves")
	runCmd.Flags().IntVar(&iters, "iters", 20, "Ascent iterations per octave")
	runCmd.Flags().Float64Var(&stepSize, "step", 0.01, "Gradient ascent step size")
	runCmd.Flags().Float64Var(&maxLoss, "max-loss", 10, "Stop an octave once loss exceeds this value (0 = disabled)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for the feature bank")
	runCmd.Flags().StringVar(&layersSpec, "layers", "", "Layer weights as name=weight,... (default: built-in mix)")
	runCmd.Flags().BoolVar(&saveOctaves, "save-octaves", false, "Write per-octave images next to the output")

	runCmd.MarkFlagRequired("ref")
	rootCmd.AddCommand(runCmd)
}

// parseLayers parses a "name=weight,name=weight" flag value.
func parseLayers(spec string) (map[string]float64, error) {
	if spec == "" {
		return nil, nil
	}
	layers := make(map[string]float64)
	for _, part := range strings.Split(spec, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid layer spec %q, want name=weight", part)
		}
		weight, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight for layer %q: %w", name, err)
		}
		if weight < 0 {
			return nil, fmt.Errorf("layer %q has negative weight", name)
		}
		layers[name] = weight
	}
	return layers, nil
}

func runDream(cmd *cobra.Command, args []string) error {
	slog.Info("Starting dream run", "ref", refPath, "octaves", octaves, "scale", scaleRatio, "iters", iters)

	layers, err := parseLayers(layersSpec)
	if err != nil {
		return err
	}

	original, err := imgio.Load(refPath)
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}
	slog.Info("Loaded reference", "shape", original.Shape())

	featureBank, err := oracle.New(oracle.Config{Layers: layers, Seed: seed})
	if err != nil {
		return fmt.Errorf("failed to build feature bank: %w", err)
	}

	runner, err := dream.NewRunner(featureBank, resample.New(), dream.Config{
		Octaves:             octaves,
		ScaleRatio:          scaleRatio,
		IterationsPerOctave: iters,
		StepSize:            stepSize,
		MaxLoss:             maxLoss,
	})
	if err != nil {
		return err
	}

	tracker := dream.NewLossTracker(dream.DefaultTrackerConfig())
	runner.OnStep = func(octave, step int, loss float64) {
		tracker.Update(loss)
		slog.Debug("Ascent step", "octave", octave, "step", step, "loss", loss)
	}
	runner.OnOctave = func(octave int, shape dream.Shape, img *dream.Tensor) error {
		slog.Info("Octave complete", "octave", octave, "shape", shape, "loss", tracker.LastLoss())
		if !saveOctaves {
			return nil
		}
		dir := filepath.Dir(outPath)
		path := filepath.Join(dir, fmt.Sprintf("octave_%s.png", shape))
		if err := imgio.Save(path, img); err != nil {
			return fmt.Errorf("failed to save octave image: %w", err)
		}
		return nil
	}

	start := time.Now()
	final, err := runner.Run(context.Background(), original)
	if err != nil {
		return fmt.Errorf("dream run failed: %w", err)
	}
	elapsed := time.Since(start)

	if err := imgio.Save(outPath, final); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}

	totalSteps := (octaves + 1) * iters
	sps := float64(totalSteps) / elapsed.Seconds()

	slog.Info("Dream run complete",
		"elapsed", elapsed,
		"peak_loss", tracker.PeakLoss(),
		"final_shape", final.Shape(),
		"steps_per_second", fmt.Sprintf("%.1f", sps),
	)

	fmt.Printf("Wrote %s (peak loss: %.4f, %.1f steps/sec)\n", outPath, tracker.PeakLoss(), sps)
	return nil
}
