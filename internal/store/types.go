package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
)

// JobConfig holds configuration for a dream job (checkpoint copy).
// This avoids import cycles with the server package.
type JobConfig struct {
	RefPath             string             `json:"refPath"`
	Octaves             int                `json:"octaves"`
	ScaleRatio          float64            `json:"scaleRatio"`
	IterationsPerOctave int                `json:"itersPerOctave"`
	StepSize            float64            `json:"stepSize"`
	MaxLoss             float64            `json:"maxLoss,omitempty"`
	Seed                int64              `json:"seed"`
	Layers              map[string]float64 `json:"layers,omitempty"`

	// CheckpointInterval enables a checkpoint after every Nth completed
	// octave (0 = only implicit per-octave artifacts, no checkpoint.json).
	CheckpointInterval int `json:"checkpointInterval,omitempty"`
}

// Validate rejects configs the pipeline itself would reject, before a job is
// created or resumed.
func (c JobConfig) Validate() error {
	if c.RefPath == "" {
		return &ValidationError{Field: "RefPath", Reason: "cannot be empty"}
	}
	if c.Octaves < 0 {
		return &ValidationError{Field: "Octaves", Reason: "must be >= 0"}
	}
	if c.ScaleRatio <= 1 {
		return &ValidationError{Field: "ScaleRatio", Reason: "must be > 1"}
	}
	if c.IterationsPerOctave <= 0 {
		return &ValidationError{Field: "IterationsPerOctave", Reason: "must be positive"}
	}
	if c.StepSize <= 0 {
		return &ValidationError{Field: "StepSize", Reason: "must be positive"}
	}
	if c.MaxLoss < 0 {
		return &ValidationError{Field: "MaxLoss", Reason: "must be >= 0"}
	}
	for name, w := range c.Layers {
		if w < 0 {
			return &ValidationError{Field: "Layers", Reason: fmt.Sprintf("layer %q has negative weight", name)}
		}
	}
	return nil
}

// Checkpoint represents a dream run persisted at an octave boundary.
//
// The working image itself lives in the per-octave PNG artifact referenced by
// ImagePath; checkpoint.json records where the cascade stopped. Resuming
// reloads the artifact, recomputes the shrunk baseline from the original at
// LastShape (the baseline is always derived from the original, never carried
// incrementally) and continues with the next, larger octave. A run can only
// be resumed at octave boundaries: mid-octave ascent state is just the
// working image, but the artifact contract persists one image per octave.
type Checkpoint struct {
	// JobID is the unique identifier for this dream job
	JobID string `json:"jobId"`

	// OctavesDone is the number of completed octaves (1-based count)
	OctavesDone int `json:"octavesDone"`

	// LastShape is the resolution of the persisted working image
	LastShape dream.Shape `json:"lastShape"`

	// LastLoss is the loss reported by the final applied step
	LastLoss float64 `json:"lastLoss"`

	// PeakLoss is the highest loss reported so far
	PeakLoss float64 `json:"peakLoss"`

	// ImagePath is the per-octave artifact of the last completed octave,
	// relative to the job directory
	ImagePath string `json:"imagePath"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during
	// resume: a resumed run must reproduce the same octave shape sequence.
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without loading
// anything beyond checkpoint.json. Used for listing.
type CheckpointInfo struct {
	JobID       string      `json:"jobId"`
	OctavesDone int         `json:"octavesDone"`
	Octaves     int         `json:"octaves"`
	LastShape   dream.Shape `json:"lastShape"`
	LastLoss    float64     `json:"lastLoss"`
	Timestamp   time.Time   `json:"timestamp"`
	RefPath     string      `json:"refPath"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, octavesDone int, lastShape dream.Shape, lastLoss, peakLoss float64, imagePath string, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		OctavesDone: octavesDone,
		LastShape:   lastShape,
		LastLoss:    lastLoss,
		PeakLoss:    peakLoss,
		ImagePath:   imagePath,
		Timestamp:   time.Now(),
		Config:      config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		OctavesDone: c.OctavesDone,
		Octaves:     c.Config.Octaves,
		LastShape:   c.LastShape,
		LastLoss:    c.LastLoss,
		Timestamp:   c.Timestamp,
		RefPath:     c.Config.RefPath,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if c.OctavesDone < 1 || c.OctavesDone > c.Config.Octaves+1 {
		return &ValidationError{
			Field:  "OctavesDone",
			Reason: fmt.Sprintf("must be in [1,%d]", c.Config.Octaves+1),
		}
	}
	if !c.LastShape.Valid() {
		return &ValidationError{Field: "LastShape", Reason: "dimensions must be >= 1"}
	}
	if c.ImagePath == "" {
		return &ValidationError{Field: "ImagePath", Reason: "cannot be empty"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// IsCompatible checks if this checkpoint can be resumed with the given
// config. Everything that determines the octave shape sequence or the ascent
// trajectory must match.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.RefPath != config.RefPath {
		return &CompatibilityError{Field: "RefPath", Expected: c.Config.RefPath, Actual: config.RefPath}
	}
	if c.Config.Octaves != config.Octaves {
		return &CompatibilityError{
			Field:    "Octaves",
			Expected: fmt.Sprintf("%d", c.Config.Octaves),
			Actual:   fmt.Sprintf("%d", config.Octaves),
		}
	}
	if c.Config.ScaleRatio != config.ScaleRatio {
		return &CompatibilityError{
			Field:    "ScaleRatio",
			Expected: fmt.Sprintf("%g", c.Config.ScaleRatio),
			Actual:   fmt.Sprintf("%g", config.ScaleRatio),
		}
	}
	if c.Config.Seed != config.Seed {
		return &CompatibilityError{
			Field:    "Seed",
			Expected: fmt.Sprintf("%d", c.Config.Seed),
			Actual:   fmt.Sprintf("%d", config.Seed),
		}
	}
	// Layer names and weights select the oracle's filter banks and the loss,
	// exactly like the seed does.
	if len(c.Config.Layers) != len(config.Layers) {
		return &CompatibilityError{
			Field:    "Layers",
			Expected: fmt.Sprintf("%d layers", len(c.Config.Layers)),
			Actual:   fmt.Sprintf("%d layers", len(config.Layers)),
		}
	}
	for name, weight := range c.Config.Layers {
		other, ok := config.Layers[name]
		if !ok {
			return &CompatibilityError{
				Field:    "Layers",
				Expected: fmt.Sprintf("%s=%g", name, weight),
				Actual:   "layer absent",
			}
		}
		if other != weight {
			return &CompatibilityError{
				Field:    "Layers",
				Expected: fmt.Sprintf("%s=%g", name, weight),
				Actual:   fmt.Sprintf("%s=%g", name, other),
			}
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
