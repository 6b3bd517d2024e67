package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
	"github.com/cwbudde/deepdream/internal/imgio"
	"github.com/cwbudde/deepdream/internal/oracle"
	"github.com/cwbudde/deepdream/internal/resample"
	"github.com/cwbudde/deepdream/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeDataDir  string
	resumeOutPath  string
	resumeIters    int
	resumeStepSize float64
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume a dream run from its checkpoint",
	Long: `Resumes a checkpointed run at the next octave boundary. The working
image is reloaded from the last per-octave artifact and the cascade continues
with the remaining, larger octaves. Loss trace entries are appended to the
existing trace.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for job artifacts and checkpoints")
	resumeCmd.Flags().StringVar(&resumeOutPath, "out", "", "Output image path (default: final.png in the job directory)")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 0, "Override ascent iterations per octave (0 = keep checkpoint value)")
	resumeCmd.Flags().Float64Var(&resumeStepSize, "step", 0, "Override gradient ascent step size (0 = keep checkpoint value)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	jobStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}

	checkpoint, err := jobStore.LoadCheckpoint(jobID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := checkpoint.Validate(); err != nil {
		return fmt.Errorf("corrupted checkpoint: %w", err)
	}

	// Iterations and step size may change between sessions; anything that
	// determines the octave shape sequence is locked to the checkpoint.
	config := checkpoint.Config
	if resumeIters > 0 {
		config.IterationsPerOctave = resumeIters
	}
	if resumeStepSize > 0 {
		config.StepSize = resumeStepSize
	}
	if err := checkpoint.IsCompatible(config); err != nil {
		return err
	}

	slog.Info("Resuming from checkpoint",
		"job_id", jobID,
		"octaves_done", checkpoint.OctavesDone,
		"last_shape", checkpoint.LastShape,
	)

	original, err := imgio.Load(config.RefPath)
	if err != nil {
		return fmt.Errorf("failed to load reference: %w", err)
	}

	working, err := imgio.Load(filepath.Join(jobStore.JobDir(jobID), checkpoint.ImagePath))
	if err != nil {
		return fmt.Errorf("failed to load checkpoint image: %w", err)
	}
	if working.Shape() != checkpoint.LastShape {
		return fmt.Errorf("checkpoint image shape %s does not match recorded shape %s",
			working.Shape(), checkpoint.LastShape)
	}

	featureBank, err := oracle.New(oracle.Config{Layers: config.Layers, Seed: config.Seed})
	if err != nil {
		return fmt.Errorf("failed to build feature bank: %w", err)
	}

	runner, err := dream.NewRunner(featureBank, resample.New(), dream.Config{
		Octaves:             config.Octaves,
		ScaleRatio:          config.ScaleRatio,
		IterationsPerOctave: config.IterationsPerOctave,
		StepSize:            config.StepSize,
		MaxLoss:             config.MaxLoss,
	})
	if err != nil {
		return err
	}

	tracer, err := store.NewTraceWriter(resumeDataDir, jobID, true)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer tracer.Close()

	tracker := dream.NewLossTracker(dream.DefaultTrackerConfig())
	runner.OnStep = func(octave, step int, loss float64) {
		tracker.Update(loss)
		if err := tracer.Write(store.TraceEntry{Octave: octave, Step: step, Loss: loss, Timestamp: time.Now()}); err != nil {
			slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
		}
	}
	runner.OnOctave = func(octave int, shape dream.Shape, img *dream.Tensor) error {
		name := fmt.Sprintf("octave_%s.png", shape)
		if err := imgio.Save(filepath.Join(jobStore.JobDir(jobID), name), img); err != nil {
			return fmt.Errorf("failed to save octave image: %w", err)
		}
		tracer.Flush()

		next := store.NewCheckpoint(jobID, octave+1, shape, tracker.LastLoss(), tracker.PeakLoss(), name, config)
		if err := jobStore.SaveCheckpoint(jobID, next); err != nil {
			slog.Warn("Failed to update checkpoint", "job_id", jobID, "error", err)
		}
		return nil
	}

	start := time.Now()
	final, err := runner.RunFrom(context.Background(), original, working, checkpoint.OctavesDone)
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}

	outPath := resumeOutPath
	if outPath == "" {
		outPath = filepath.Join(jobStore.JobDir(jobID), "final.png")
	}
	if err := imgio.Save(outPath, final); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}

	slog.Info("Resume complete",
		"job_id", jobID,
		"elapsed", time.Since(start),
		"peak_loss", tracker.PeakLoss(),
		"final_shape", final.Shape(),
	)

	fmt.Printf("Wrote %s (resumed at octave %d)\n", outPath, checkpoint.OctavesDone)
	return nil
}
