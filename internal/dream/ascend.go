package dream

import (
	"fmt"
	"log/slog"
)

// ProgressFunc observes each applied ascent step. Reporting is best-effort
// visibility only and must not mutate the image.
type ProgressFunc func(step int, loss float64)

// Ascend runs bounded gradient ascent on a copy of img: each step queries the
// oracle and applies image += stepSize * gradient. If maxLoss is > 0 and the
// reported loss exceeds it, the loop stops before applying that step's update
// and the image as of the previous step is returned. The input tensor is
// never modified.
func Ascend(oracle Oracle, img *Tensor, iterations int, stepSize, maxLoss float64, progress ProgressFunc) (*Tensor, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	current := img.Clone()
	for step := 0; step < iterations; step++ {
		loss, grad, err := oracle.Evaluate(current)
		if err != nil {
			return nil, fmt.Errorf("oracle evaluation failed at step %d: %w", step, err)
		}
		if maxLoss > 0 && loss > maxLoss {
			slog.Debug("Loss cap reached, stopping ascent early",
				"step", step, "loss", loss, "max_loss", maxLoss)
			break
		}
		if progress != nil {
			progress(step, loss)
		}
		if err := current.AddScaled(grad, stepSize); err != nil {
			return nil, fmt.Errorf("gradient shape mismatch at step %d: %w", step, err)
		}
	}
	return current, nil
}
