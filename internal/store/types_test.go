package store

import (
	"errors"
	"testing"
	"time"

	"github.com/cwbudde/deepdream/internal/dream"
)

func validConfig() JobConfig {
	return JobConfig{
		RefPath:             "assets/test.png",
		Octaves:             3,
		ScaleRatio:          1.4,
		IterationsPerOctave: 20,
		StepSize:            0.01,
		MaxLoss:             10,
		Seed:                42,
	}
}

func TestJobConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*JobConfig)
	}{
		{"empty ref path", func(c *JobConfig) { c.RefPath = "" }},
		{"negative octaves", func(c *JobConfig) { c.Octaves = -1 }},
		{"ratio at one", func(c *JobConfig) { c.ScaleRatio = 1.0 }},
		{"zero iterations", func(c *JobConfig) { c.IterationsPerOctave = 0 }},
		{"negative step size", func(c *JobConfig) { c.StepSize = -0.01 }},
		{"negative max loss", func(c *JobConfig) { c.MaxLoss = -5 }},
		{"negative layer weight", func(c *JobConfig) { c.Layers = map[string]float64{"mixed4": -1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("Expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestCheckpointValidate(t *testing.T) {
	valid := NewCheckpoint("job-1", 2, dream.Shape{H: 214, W: 214}, 4.7, 4.7, "octave_214x214.png", validConfig())
	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid checkpoint rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Checkpoint)
	}{
		{"empty job id", func(c *Checkpoint) { c.JobID = "" }},
		{"zero octaves done", func(c *Checkpoint) { c.OctavesDone = 0 }},
		{"octaves done beyond sequence", func(c *Checkpoint) { c.OctavesDone = 5 }},
		{"invalid shape", func(c *Checkpoint) { c.LastShape = dream.Shape{H: 0, W: 214} }},
		{"empty image path", func(c *Checkpoint) { c.ImagePath = "" }},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }},
		{"invalid embedded config", func(c *Checkpoint) { c.Config.ScaleRatio = 1.0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := NewCheckpoint("job-1", 2, dream.Shape{H: 214, W: 214}, 4.7, 4.7, "octave_214x214.png", validConfig())
			tt.mutate(cp)
			if err := cp.Validate(); err == nil {
				t.Fatal("Expected validation error, got nil")
			}
		})
	}
}

func TestCheckpointIsCompatible(t *testing.T) {
	cp := NewCheckpoint("job-1", 2, dream.Shape{H: 214, W: 214}, 4.7, 4.7, "octave_214x214.png", validConfig())

	if err := cp.IsCompatible(validConfig()); err != nil {
		t.Fatalf("Identical config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*JobConfig)
	}{
		{"different ref", func(c *JobConfig) { c.RefPath = "assets/other.png" }},
		{"different octaves", func(c *JobConfig) { c.Octaves = 4 }},
		{"different ratio", func(c *JobConfig) { c.ScaleRatio = 2.0 }},
		{"different seed", func(c *JobConfig) { c.Seed = 7 }},
		{"extra layer", func(c *JobConfig) { c.Layers = map[string]float64{"mixed4": 1.0} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cp.IsCompatible(cfg)
			if err == nil {
				t.Fatal("Expected compatibility error, got nil")
			}
			var cErr *CompatibilityError
			if !errors.As(err, &cErr) {
				t.Errorf("Expected *CompatibilityError, got %T", err)
			}
		})
	}
}

func TestCheckpointIsCompatibleLayers(t *testing.T) {
	base := validConfig()
	base.Layers = map[string]float64{"mixed4": 1.0, "mixed5": 1.5}
	cp := NewCheckpoint("job-1", 2, dream.Shape{H: 214, W: 214}, 4.7, 4.7, "octave_214x214.png", base)

	same := base
	same.Layers = map[string]float64{"mixed4": 1.0, "mixed5": 1.5}
	if err := cp.IsCompatible(same); err != nil {
		t.Fatalf("Equal layer maps rejected: %v", err)
	}

	changed := base
	changed.Layers = map[string]float64{"mixed4": 1.0, "mixed5": 2.0}
	if err := cp.IsCompatible(changed); err == nil {
		t.Error("Expected compatibility error for changed layer weight")
	}

	renamed := base
	renamed.Layers = map[string]float64{"mixed4": 1.0, "mixed6": 1.5}
	if err := cp.IsCompatible(renamed); err == nil {
		t.Error("Expected compatibility error for renamed layer")
	}
}

func TestCheckpointToInfo(t *testing.T) {
	cp := NewCheckpoint("job-1", 2, dream.Shape{H: 214, W: 214}, 4.7, 5.1, "octave_214x214.png", validConfig())
	info := cp.ToInfo()

	if info.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", info.JobID)
	}
	if info.OctavesDone != 2 {
		t.Errorf("OctavesDone = %d, want 2", info.OctavesDone)
	}
	if info.Octaves != 3 {
		t.Errorf("Octaves = %d, want 3", info.Octaves)
	}
	if info.LastShape != (dream.Shape{H: 214, W: 214}) {
		t.Errorf("LastShape = %v, want 214x214", info.LastShape)
	}
	if info.RefPath != "assets/test.png" {
		t.Errorf("RefPath = %q, want assets/test.png", info.RefPath)
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := &NotFoundError{JobID: "x"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if errors.Is(errors.New("other"), ErrNotFound) {
		t.Error("Unrelated error should not match ErrNotFound")
	}
}
