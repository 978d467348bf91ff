package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// ViscoElasticConfig controls the regularized non-rigid update.
type ViscoElasticConfig struct {
	// SmoothingNeighbours is the number of floating-mesh neighbors each
	// vertex's vector fields are smoothed over.
	SmoothingNeighbours int
	// SigmaSmoothing is the Gaussian bandwidth of the smoothing kernel, in
	// the same units as the mesh positions.
	SigmaSmoothing float64
	// ViscousIterations is the number of smoothing passes applied to the
	// per-iteration force field.
	ViscousIterations int
	// ElasticIterations is the number of smoothing passes applied to the
	// accumulated displacement field.
	ElasticIterations int
}

// DisplacementField is the accumulated non-rigid deformation of a floating
// mesh, owned by the registration driver and threaded through successive
// calls so elastic smoothing acts on the total deformation rather than a
// single step.
type DisplacementField struct {
	// Origins are the vertex positions the field displaces from, captured
	// when the field was created.
	Origins []r3.Vector
	// Vectors holds the accumulated per-vertex displacement.
	Vectors []r3.Vector
}

// NewDisplacementField captures the current positions of floating as the
// deformation origin with a zero displacement everywhere.
func NewDisplacementField(floating *Mesh) *DisplacementField {
	n := floating.NumVertices()
	field := &DisplacementField{
		Origins: make([]r3.Vector, n),
		Vectors: make([]r3.Vector, n),
	}
	for i := range floating.Features {
		field.Origins[i] = floating.Features[i].Position
	}
	return field
}

// ComputeNonrigidTransformation pulls the floating vertices toward their
// correspondences under visco-elastic regularization. The raw per-vertex
// force (correspondence minus current position, masked by the inlier
// weights and the floating flags) is smoothed ViscousIterations times over
// each vertex's k-neighborhood, added to the accumulated displacement field,
// and the sum is smoothed ElasticIterations more times. Positions are then
// rewritten as field origin plus displacement and the normals recomputed
// from the deformed faces.
//
// Smoothing weights are Gaussian in current inter-vertex distance and
// multiplied by the neighbor's inlier weight and flag, so unreliable vertices
// neither move on their own nor drag their neighbors. A vertex whose whole
// neighborhood carries zero weight keeps its previous field value.
func ComputeNonrigidTransformation(floating *Mesh, corresponding []Feature, weights []float64, field *DisplacementField, cfg ViscoElasticConfig) error {
	n := floating.NumVertices()
	if len(corresponding) != n || len(weights) != n {
		return wrapInvalidInput("correspondence arrays (%d, %d) do not match vertex count %d",
			len(corresponding), len(weights), n)
	}
	if field == nil || len(field.Origins) != n || len(field.Vectors) != n {
		return wrapInvalidInput("displacement field does not match vertex count %d", n)
	}
	if cfg.SmoothingNeighbours < 1 {
		return wrapInvalidInput("smoothingNeighbours must be >= 1, got %d", cfg.SmoothingNeighbours)
	}
	if cfg.SigmaSmoothing <= 0 {
		return wrapInvalidInput("sigmaSmoothing must be positive, got %g", cfg.SigmaSmoothing)
	}
	if cfg.ViscousIterations < 0 || cfg.ElasticIterations < 0 {
		return wrapInvalidInput("smoothing iteration counts must be non-negative, got %d and %d",
			cfg.ViscousIterations, cfg.ElasticIterations)
	}
	for i, w := range weights {
		if w < 0 {
			return wrapInvalidInput("negative weight at vertex %d", i)
		}
	}
	eff := make([]float64, n)
	for i := range eff {
		eff[i] = weights[i] * floating.Flags[i]
	}

	index, err := NewPositionIndex(floating.Positions())
	if err != nil {
		return err
	}

	// The neighborhood graph and kernel are frozen for the whole call so the
	// viscous and elastic passes smooth over the same stencil.
	neighbors := make([][]int, n)
	kernel := make([][]float64, n)
	twoSigma2 := 2 * cfg.SigmaSmoothing * cfg.SigmaSmoothing
	forEachBlock(n, func(start, end int) {
		for i := start; i < end; i++ {
			indices, sqDists := index.KNN(floating.Features[i].Position, cfg.SmoothingNeighbours, i)
			row := make([]float64, len(indices))
			for j := range indices {
				row[j] = math.Exp(-sqDists[j]/twoSigma2) * eff[indices[j]]
			}
			neighbors[i] = indices
			kernel[i] = row
		}
	})

	force := make([]r3.Vector, n)
	for i := 0; i < n; i++ {
		if eff[i] > 0 {
			force[i] = corresponding[i].Position.Sub(floating.Features[i].Position)
		}
	}
	force = smoothField(force, neighbors, kernel, eff, cfg.ViscousIterations)

	for i := 0; i < n; i++ {
		field.Vectors[i] = field.Vectors[i].Add(force[i])
	}
	field.Vectors = smoothField(field.Vectors, neighbors, kernel, eff, cfg.ElasticIterations)

	for i := range floating.Features {
		floating.Features[i].Position = field.Origins[i].Add(field.Vectors[i])
	}
	floating.RecomputeNormals()
	return checkFiniteFeatures(floating.Features)
}

// smoothField runs iterations of weighted neighborhood averaging over the
// vector field, double-buffered so every pass reads a consistent snapshot.
// Each output is the kernel-weighted mean of the vertex's own value (at its
// inlier weight) and its neighbors' values. A vertex whose combined weight
// vanishes keeps its previous value.
func smoothField(field []r3.Vector, neighbors [][]int, kernel [][]float64, selfWeights []float64, iterations int) []r3.Vector {
	if iterations <= 0 {
		return field
	}
	current := field
	next := make([]r3.Vector, len(field))
	for it := 0; it < iterations; it++ {
		forEachBlock(len(current), func(start, end int) {
			for i := start; i < end; i++ {
				sum := selfWeights[i]
				acc := current[i].Mul(selfWeights[i])
				for j, nb := range neighbors[i] {
					w := kernel[i][j]
					if w == 0 {
						continue
					}
					acc = acc.Add(current[nb].Mul(w))
					sum += w
				}
				if sum <= 1e-12 {
					next[i] = current[i]
					continue
				}
				next[i] = acc.Mul(1 / sum)
			}
		})
		current, next = next, current
	}
	return current
}
