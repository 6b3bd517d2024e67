package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
	"github.com/cwbudde/deepdream/internal/imgio"
	"github.com/cwbudde/deepdream/internal/oracle"
	"github.com/cwbudde/deepdream/internal/resample"
	"github.com/cwbudde/deepdream/internal/store"
)

// runJob executes a dream job in the background. Per-octave artifacts are
// always written to the job directory; checkpoint.json is saved after every
// CheckpointInterval completed octaves when the interval is > 0.
func runJob(ctx context.Context, jm *JobManager, jobStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "ref", job.Config.RefPath)

	original, err := imgio.Load(job.Config.RefPath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load reference: %w", err))
		return err
	}

	slog.Info("Loaded reference image", "job_id", jobID, "shape", original.Shape())

	runner, tracer, err := buildRunner(jm, jobStore, dataDir, jobID, job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	if tracer != nil {
		defer tracer.Close()
	}

	start := time.Now()

	// Throttled progress broadcasting, decoupled from the hot ascent loop
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)
	defer close(progressDone)

	final, err := runner.Run(ctx, original)
	elapsed := time.Since(start)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Best image so far is still worth keeping
		if final != nil && jobStore != nil {
			savePartial(jobStore, jobID, final)
		}
		markJobCancelled(jm, jobID)
		return err
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	finalPath := ""
	if jobStore != nil {
		finalPath = filepath.Join(jobStore.JobDir(jobID), "final.png")
		if err := imgio.Save(finalPath, final); err != nil {
			markJobFailed(jm, jobID, fmt.Errorf("failed to save final image: %w", err))
			return err
		}
	}

	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		if finalPath != "" {
			j.Artifact = finalPath
		}
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	job, _ = jm.GetJob(jobID)
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"peak_loss", job.PeakLoss,
		"final_shape", final.Shape(),
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Octave:    job.Octave,
		Step:      job.Step,
		LastLoss:  job.LastLoss,
		PeakLoss:  job.PeakLoss,
		SPS:       stepsPerSecond(job, elapsed),
		Timestamp: time.Now(),
	})

	return nil
}

// buildRunner assembles the oracle, resampler and pipeline runner for a job
// and wires its hooks into job state, trace and artifact persistence.
func buildRunner(jm *JobManager, jobStore store.Store, dataDir, jobID string, config JobConfig) (*dream.Runner, *store.TraceWriter, error) {
	featureBank, err := oracle.New(oracle.Config{
		Layers: config.Layers,
		Seed:   config.Seed,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build oracle: %w", err)
	}

	runner, err := dream.NewRunner(featureBank, resample.New(), dream.Config{
		Octaves:             config.Octaves,
		ScaleRatio:          config.ScaleRatio,
		IterationsPerOctave: config.IterationsPerOctave,
		StepSize:            config.StepSize,
		MaxLoss:             config.MaxLoss,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build runner: %w", err)
	}

	var tracer *store.TraceWriter
	if jobStore != nil {
		tracer, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create trace writer: %w", err)
		}
	}

	tracker := dream.NewLossTracker(dream.DefaultTrackerConfig())

	runner.OnStep = func(octave, step int, loss float64) {
		tracker.Update(loss)
		jm.UpdateJob(jobID, func(j *Job) {
			j.Octave = octave
			j.Step = step
			j.LastLoss = loss
			j.PeakLoss = tracker.PeakLoss()
		})
		if tracer != nil {
			if err := tracer.Write(store.TraceEntry{Octave: octave, Step: step, Loss: loss, Timestamp: time.Now()}); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}

	runner.OnOctave = func(octave int, shape dream.Shape, img *dream.Tensor) error {
		if jobStore == nil {
			return nil
		}
		name := fmt.Sprintf("octave_%s.png", shape)
		path := filepath.Join(jobStore.JobDir(jobID), name)
		if err := imgio.Save(path, img); err != nil {
			return fmt.Errorf("failed to save octave artifact: %w", err)
		}
		jm.UpdateJob(jobID, func(j *Job) {
			j.Artifact = path
		})
		if tracer != nil {
			tracer.Flush()
		}

		if config.CheckpointInterval > 0 && (octave+1)%config.CheckpointInterval == 0 {
			if err := saveCheckpoint(jm, jobStore, jobID, octave+1, shape, name); err != nil {
				// Metadata loss is not fatal, the artifact is already on disk
				slog.Warn("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
		return nil
	}

	return runner, tracer, nil
}

// saveCheckpoint persists checkpoint.json next to the octave artifacts.
func saveCheckpoint(jm *JobManager, jobStore store.Store, jobID string, octavesDone int, shape dream.Shape, imageName string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	checkpoint := store.NewCheckpoint(jobID, octavesDone, shape, job.LastLoss, job.PeakLoss, imageName, job.Config)
	if err := jobStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"octaves_done", octavesDone,
		"shape", shape,
	)
	return nil
}

// savePartial writes the best-so-far image of a cancelled run.
func savePartial(jobStore store.Store, jobID string, img *dream.Tensor) {
	path := filepath.Join(jobStore.JobDir(jobID), "partial.png")
	if err := imgio.Save(path, img); err != nil {
		slog.Warn("Failed to save partial image", "job_id", jobID, "error", err)
		return
	}
	slog.Info("Saved partial image from cancelled run", "job_id", jobID, "path", path)
}

// monitorProgress periodically broadcasts progress events during a run
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     job.State,
				Octave:    job.Octave,
				Step:      job.Step,
				LastLoss:  job.LastLoss,
				PeakLoss:  job.PeakLoss,
				SPS:       stepsPerSecond(job, time.Since(startTime)),
				Timestamp: time.Now(),
			})
		}
	}
}

// stepsPerSecond estimates ascent throughput from completed octaves and the
// current step index.
func stepsPerSecond(job *Job, elapsed time.Duration) float64 {
	if elapsed.Seconds() <= 0 {
		return 0
	}
	totalSteps := job.Octave*job.Config.IterationsPerOctave + job.Step
	return float64(totalSteps) / elapsed.Seconds()
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
