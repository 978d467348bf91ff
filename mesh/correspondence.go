package mesh

import (
	"math"
)

// CorrespondenceConfig controls the soft correspondence estimation.
type CorrespondenceConfig struct {
	// Symmetric fuses the floating-to-target affinity with the transposed
	// target-to-floating affinity before pulling features.
	Symmetric bool
	// NumNeighbours is the number of target neighbors each floating vertex
	// is matched against (k). Values larger than the target vertex count
	// fall back to using every target vertex.
	NumNeighbours int
}

// flagRoundingLimit is the reliability cutoff for corresponding flags: a
// floating vertex whose affinity includes more than 10% contribution from
// flagged-out target vertices is itself flagged unreliable.
const flagRoundingLimit = 0.9

// affinityEntry is one nonzero element of a sparse affinity row.
type affinityEntry struct {
	col    int
	weight float64
}

type affinityRow []affinityEntry

// ComputeCorrespondences estimates, for every floating vertex, a soft
// correspondence on the target surface: a normalized Gaussian-in-distance
// mixture of its k nearest target vertices in 6-D feature space. It returns
// the corresponding features and a binary reliability flag per floating
// vertex.
func ComputeCorrespondences(floating, target *Mesh, cfg CorrespondenceConfig) ([]Feature, []float64, error) {
	if err := floating.Validate(); err != nil {
		return nil, nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.NumNeighbours < 1 {
		return nil, nil, wrapInvalidInput("numNeighbours must be >= 1, got %d", cfg.NumNeighbours)
	}

	targetIndex, err := NewFeatureIndex(target.Features)
	if err != nil {
		return nil, nil, err
	}

	affinity := buildAffinity(floating.Features, targetIndex, cfg.NumNeighbours)
	if cfg.Symmetric {
		floatingIndex, err := NewFeatureIndex(floating.Features)
		if err != nil {
			return nil, nil, err
		}
		pull := buildAffinity(target.Features, floatingIndex, cfg.NumNeighbours)
		affinity, err = fuseAffinities(affinity, pull, len(floating.Features), len(target.Features))
		if err != nil {
			return nil, nil, err
		}
	}

	corr, corrFlags := affinityToCorrespondences(affinity, target.Features, target.Flags)
	if err := checkFiniteFeatures(corr); err != nil {
		return nil, nil, err
	}
	return corr, corrFlags, nil
}

// buildAffinity computes one normalized sparse affinity row per query
// feature over the indexed set. Row weights are Gaussian in squared 6-D
// distance with a per-row bandwidth equal to the k-th neighbor's distance,
// and sum to 1.
func buildAffinity(queries []Feature, index *FeatureIndex, k int) []affinityRow {
	rows := make([]affinityRow, len(queries))
	forEachBlock(len(queries), func(start, end int) {
		for i := start; i < end; i++ {
			indices, sqDists := index.KNN(queries[i], k, -1)
			row := make(affinityRow, 0, len(indices))
			// Bandwidth: the squared distance of the farthest retained
			// neighbor. Coincident neighborhoods get uniform weights.
			sigma2 := sqDists[len(sqDists)-1]
			var sum float64
			for j, col := range indices {
				w := 1.0
				if sigma2 > 1e-300 {
					w = math.Exp(-0.5 * sqDists[j] / sigma2)
				}
				row = append(row, affinityEntry{col: col, weight: w})
				sum += w
			}
			for j := range row {
				row[j].weight /= sum
			}
			rows[i] = row
		}
	})
	return rows
}

// fuseAffinities averages the push affinity (floating rows over target
// columns) with the transpose of the pull affinity (target rows over
// floating columns) and renormalizes each fused row to sum to 1. The shapes
// must agree: push is numFloating x numTarget, pull is numTarget x
// numFloating.
func fuseAffinities(push, pull []affinityRow, numFloating, numTarget int) ([]affinityRow, error) {
	if len(push) != numFloating || len(pull) != numTarget {
		return nil, wrapInvalidInput("affinity shapes disagree: push has %d rows (want %d), pull has %d rows (want %d)",
			len(push), numFloating, len(pull), numTarget)
	}
	merged := make([]map[int]float64, numFloating)
	for i, row := range push {
		m := make(map[int]float64, len(row))
		for _, e := range row {
			m[e.col] = 0.5 * e.weight
		}
		merged[i] = m
	}
	for j, row := range pull {
		for _, e := range row {
			if e.col < 0 || e.col >= numFloating {
				return nil, wrapInvalidInput("pull affinity column %d out of range (%d floating vertices)", e.col, numFloating)
			}
			merged[e.col][j] += 0.5 * e.weight
		}
	}
	fused := make([]affinityRow, numFloating)
	for i, m := range merged {
		row := make(affinityRow, 0, len(m))
		var sum float64
		for col, w := range m {
			row = append(row, affinityEntry{col: col, weight: w})
			sum += w
		}
		// Deterministic entry order: maps iterate randomly.
		sortAffinityRow(row)
		if sum > 0 {
			for k := range row {
				row[k].weight /= sum
			}
		}
		fused[i] = row
	}
	return fused, nil
}

func sortAffinityRow(row affinityRow) {
	for i := 1; i < len(row); i++ {
		for j := i; j > 0 && row[j].col < row[j-1].col; j-- {
			row[j], row[j-1] = row[j-1], row[j]
		}
	}
}

// affinityToCorrespondences turns normalized affinity rows into corresponding
// features and flags. The reliability flag is decided against the full
// affinity row (a row drawing more than 1-flagRoundingLimit of its weight
// from flagged-out targets is unreliable); the feature pull itself excludes
// flagged-out targets entirely and renormalizes over the rest, so masked
// vertices never drag correspondences toward them.
func affinityToCorrespondences(affinity []affinityRow, targetFeatures []Feature, targetFlags []float64) ([]Feature, []float64) {
	corr := make([]Feature, len(affinity))
	flags := make([]float64, len(affinity))
	forEachBlock(len(affinity), func(start, end int) {
		for i := start; i < end; i++ {
			row := affinity[i]

			var flagged float64
			for _, e := range row {
				flagged += e.weight * targetFlags[e.col]
			}
			if flagged >= flagRoundingLimit {
				flags[i] = 1
			}

			var sum float64
			var feature Feature
			for _, e := range row {
				w := e.weight * targetFlags[e.col]
				if w == 0 {
					continue
				}
				f := targetFeatures[e.col]
				feature.Position = feature.Position.Add(f.Position.Mul(w))
				feature.Normal = feature.Normal.Add(f.Normal.Mul(w))
				sum += w
			}
			if sum <= 0 {
				// Every neighbor is masked out: no usable pull.
				corr[i] = Feature{}
				flags[i] = 0
				continue
			}
			feature.Position = feature.Position.Mul(1 / sum)
			feature.Normal = feature.Normal.Mul(1 / sum)
			norm := feature.Normal.Norm()
			if norm > normalEpsilon {
				feature.Normal = feature.Normal.Mul(1 / norm)
			}
			corr[i] = feature
		}
	})
	return corr, flags
}
