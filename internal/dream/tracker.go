package dream

import (
	"log/slog"
	"math"
)

// TrackerConfig defines parameters for detecting stagnating ascent.
type TrackerConfig struct {
	// Enabled controls whether stagnation detection is active.
	Enabled bool

	// Patience is the number of steps with no significant loss increase
	// before the tracker reports stagnation.
	Patience int

	// Threshold is the minimum relative increase required to count as
	// progress, e.g. 0.001 = 0.1%.
	Threshold float64
}

// DefaultTrackerConfig returns sensible defaults for stagnation detection.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Enabled:   true,
		Patience:  5,
		Threshold: 0.001,
	}
}

// LossTracker records the loss history of a run and detects when gradient
// ascent has stopped making progress. Ascent maximizes, so "best" is the
// highest loss seen.
type LossTracker struct {
	config          TrackerConfig
	history         []float64
	peakLoss        float64
	lastSignificant float64
	staleCount      int
}

// NewLossTracker creates a tracker with the given config.
func NewLossTracker(config TrackerConfig) *LossTracker {
	return &LossTracker{
		config:          config,
		peakLoss:        math.Inf(-1),
		lastSignificant: math.Inf(-1),
	}
}

// Update records a new loss value and returns true if stagnation is detected.
func (t *LossTracker) Update(loss float64) bool {
	t.history = append(t.history, loss)

	if loss > t.peakLoss {
		t.peakLoss = loss
	}

	if !t.config.Enabled {
		return false
	}

	if len(t.history) == 1 {
		t.lastSignificant = loss
		return false
	}

	relativeIncrease := (loss - t.lastSignificant) / math.Max(math.Abs(t.lastSignificant), 1e-12)
	if relativeIncrease >= t.config.Threshold {
		t.lastSignificant = loss
		t.staleCount = 0
		return false
	}

	t.staleCount++
	if t.staleCount >= t.config.Patience {
		slog.Debug("Ascent stagnation detected",
			"stale_count", t.staleCount,
			"patience", t.config.Patience,
			"peak_loss", t.peakLoss,
		)
		return true
	}
	return false
}

// PeakLoss returns the highest loss seen so far, or -Inf before any update.
func (t *LossTracker) PeakLoss() float64 {
	return t.peakLoss
}

// LastLoss returns the most recently recorded loss, or 0 before any update.
func (t *LossTracker) LastLoss() float64 {
	if len(t.history) == 0 {
		return 0
	}
	return t.history[len(t.history)-1]
}

// History returns a copy of the full loss history.
func (t *LossTracker) History() []float64 {
	return append([]float64{}, t.history...)
}

// StaleCount returns the current number of steps without significant increase.
func (t *LossTracker) StaleCount() int {
	return t.staleCount
}

// Reset clears the tracker's state.
func (t *LossTracker) Reset() {
	t.history = nil
	t.peakLoss = math.Inf(-1)
	t.lastSignificant = math.Inf(-1)
	t.staleCount = 0
}
