package mesh

import (
	"sort"
)

// InlierConfig controls the residual-based inlier reweighting.
type InlierConfig struct {
	// Kappa is the outlier cutoff in units of the robust residual scale.
	// Values around 3-4 give a soft reweighting that degrades gracefully on
	// heavy-tailed residual distributions.
	Kappa float64
}

// ComputeInlierWeights assigns each floating vertex a weight in [0,1] based
// on the magnitude of its positional residual against the current
// correspondence. The residual scale is the median residual over reliable
// correspondences, so a minority of gross outliers cannot inflate it.
// Vertices with an unreliable correspondence get weight 0. If every
// correspondence is unreliable, all weights are 0 and downstream transforms
// become no-ops.
func ComputeInlierWeights(floating *Mesh, corresponding []Feature, correspondingFlags []float64, cfg InlierConfig) ([]float64, error) {
	n := floating.NumVertices()
	if len(corresponding) != n || len(correspondingFlags) != n {
		return nil, wrapInvalidInput("correspondence arrays (%d, %d) do not match vertex count %d",
			len(corresponding), len(correspondingFlags), n)
	}
	if cfg.Kappa <= 0 {
		return nil, wrapInvalidInput("kappa must be positive, got %g", cfg.Kappa)
	}

	residuals := make([]float64, n)
	for i := 0; i < n; i++ {
		residuals[i] = corresponding[i].Position.Sub(floating.Features[i].Position).Norm()
	}

	flagged := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if correspondingFlags[i] != 0 {
			flagged = append(flagged, residuals[i])
		}
	}
	weights := make([]float64, n)
	if len(flagged) == 0 {
		return weights, nil
	}

	sigma := median(flagged)
	cutoff := cfg.Kappa * sigma
	for i := 0; i < n; i++ {
		if correspondingFlags[i] == 0 {
			continue
		}
		if cutoff <= 1e-12 {
			// Perfect overlap: every residual at (numerically) zero is a
			// full inlier, anything else is not.
			if residuals[i] <= 1e-12 {
				weights[i] = 1
			}
			continue
		}
		ratio := residuals[i] / cutoff
		weights[i] = 1 / (1 + ratio*ratio)
	}
	return weights, nil
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return 0.5 * (sorted[mid-1] + sorted[mid])
}
