package mesh

import (
	"math"
)

// IterationInfo describes one completed driver iteration. It is handed to
// the optional OnIteration hook, which progress reporters (logging, MQTT)
// subscribe to.
type IterationInfo struct {
	// Stage is "rigid" or "nonrigid".
	Stage string
	// Level is the pyramid level, 0 being the coarsest. Single-resolution
	// drivers always report 0.
	Level int
	// Iteration is the zero-based index of the completed driver iteration,
	// global across pyramid levels.
	Iteration int
	// Residual is the inlier-weighted RMS of the positional residuals
	// against the iteration's correspondences, before the transform was
	// applied.
	Residual float64
	// Floating is a read-only view of the driver's working mesh after the
	// iteration's transform. Hooks must not mutate it.
	Floating *Mesh
}

// RigidConfig parameterizes the rigid registration driver.
type RigidConfig struct {
	NumIterations  int
	AllowScaling   bool
	Correspondence CorrespondenceConfig
	Inlier         InlierConfig
	// OnIteration, when set, is called after every completed iteration.
	OnIteration func(IterationInfo)
}

// DefaultRigidConfig returns the rigid driver defaults.
func DefaultRigidConfig() RigidConfig {
	return RigidConfig{
		NumIterations: 20,
		Correspondence: CorrespondenceConfig{
			Symmetric:     true,
			NumNeighbours: 5,
		},
		Inlier: InlierConfig{Kappa: 4.0},
	}
}

// RigidResult reports the outcome of a rigid registration.
type RigidResult struct {
	// Transform is the composition of every per-iteration alignment, mapping
	// the input floating positions onto the final ones.
	Transform RigidTransform
	// Iterations is the number of iterations run.
	Iterations int
	// Residual is the final iteration's weighted RMS residual.
	Residual float64
}

// RigidRegistration iteratively aligns floating onto target with a rigid
// (or, with AllowScaling, similarity) transform: correspondence estimation,
// inlier reweighting and a closed-form alignment per iteration. On success
// the floating mesh is updated in place; on any failure it is left
// untouched.
func RigidRegistration(floating, target *Mesh, cfg RigidConfig) (*RigidResult, error) {
	if cfg.NumIterations < 1 {
		return nil, wrapInvalidInput("numIterations must be >= 1, got %d", cfg.NumIterations)
	}
	if err := floating.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	work := floating.Clone()
	result := &RigidResult{Transform: IdentityTransform()}
	for it := 0; it < cfg.NumIterations; it++ {
		corresponding, flags, err := ComputeCorrespondences(work, target, cfg.Correspondence)
		if err != nil {
			return nil, err
		}
		weights, err := ComputeInlierWeights(work, corresponding, flags, cfg.Inlier)
		if err != nil {
			return nil, err
		}
		result.Residual = weightedRMS(work, corresponding, weights)
		step, err := ComputeRigidTransformation(work, corresponding, weights, cfg.AllowScaling)
		if err != nil {
			return nil, err
		}
		result.Transform = result.Transform.Compose(step)
		result.Iterations = it + 1
		if cfg.OnIteration != nil {
			cfg.OnIteration(IterationInfo{Stage: "rigid", Iteration: it, Residual: result.Residual, Floating: work})
		}
	}

	commit(floating, work)
	return result, nil
}

// NonrigidConfig parameterizes the single-resolution non-rigid driver.
type NonrigidConfig struct {
	NumIterations  int
	Correspondence CorrespondenceConfig
	Inlier         InlierConfig
	// SmoothingNeighbours and SigmaSmoothing are passed through to the
	// visco-elastic transformer.
	SmoothingNeighbours int
	SigmaSmoothing      float64
	// The viscous and elastic smoothing counts ramp linearly from Start to
	// End over the driver iterations, floored and clamped at 1.
	ViscousIterationsStart int
	ViscousIterationsEnd   int
	ElasticIterationsStart int
	ElasticIterationsEnd   int
	OnIteration            func(IterationInfo)
}

// DefaultNonrigidConfig returns the non-rigid driver defaults.
func DefaultNonrigidConfig() NonrigidConfig {
	return NonrigidConfig{
		NumIterations: 60,
		Correspondence: CorrespondenceConfig{
			Symmetric:     true,
			NumNeighbours: 5,
		},
		Inlier:                 InlierConfig{Kappa: 4.0},
		SmoothingNeighbours:    10,
		SigmaSmoothing:         3.0,
		ViscousIterationsStart: 50,
		ViscousIterationsEnd:   1,
		ElasticIterationsStart: 50,
		ElasticIterationsEnd:   1,
	}
}

// RegistrationResult reports the outcome of a non-rigid registration.
type RegistrationResult struct {
	Iterations int
	// Residual is the final iteration's weighted RMS residual, at the
	// resolution it was measured on (the finest pyramid level for the
	// pyramid driver).
	Residual float64
}

// NonrigidRegistration deforms floating onto target at a single resolution.
// On success the floating mesh is updated in place; on any failure it is
// left untouched.
func NonrigidRegistration(floating, target *Mesh, cfg NonrigidConfig) (*RegistrationResult, error) {
	if cfg.NumIterations < 1 {
		return nil, wrapInvalidInput("numIterations must be >= 1, got %d", cfg.NumIterations)
	}
	if err := floating.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	work := floating.Clone()
	field := NewDisplacementField(work)
	result := &RegistrationResult{}
	ramp := rampSchedule{total: cfg.NumIterations, cfg: cfg}
	if err := runNonrigidIterations(work, target, field, cfg, ramp, 0, 0, result); err != nil {
		return nil, err
	}
	commit(floating, work)
	return result, nil
}

// PyramidConfig parameterizes the multi-resolution driver.
type PyramidConfig struct {
	NumIterations    int
	NumPyramidLayers int
	// Downsample percentages are fractions of vertices removed, in [0,100),
	// interpolated linearly from Start at the coarsest level to End at the
	// finest.
	DownsampleFloatStart  float64
	DownsampleFloatEnd    float64
	DownsampleTargetStart float64
	DownsampleTargetEnd   float64
	Nonrigid              NonrigidConfig
}

// DefaultPyramidConfig returns the pyramid driver defaults.
func DefaultPyramidConfig() PyramidConfig {
	cfg := PyramidConfig{
		NumIterations:         60,
		NumPyramidLayers:      3,
		DownsampleFloatStart:  90,
		DownsampleTargetStart: 90,
		Nonrigid:              DefaultNonrigidConfig(),
	}
	return cfg
}

// PyramidRegistration runs the non-rigid registration coarse-to-fine over
// NumPyramidLayers decimated resolutions, shifting the deformation between
// levels, and writes the final deformation back at the input resolution. On
// success the floating mesh is updated in place; on any failure it is left
// untouched.
func PyramidRegistration(floating, target *Mesh, cfg PyramidConfig) (*RegistrationResult, error) {
	if cfg.NumIterations < 1 {
		return nil, wrapInvalidInput("numIterations must be >= 1, got %d", cfg.NumIterations)
	}
	if cfg.NumPyramidLayers < 1 {
		return nil, wrapInvalidInput("numPyramidLayers must be >= 1, got %d", cfg.NumPyramidLayers)
	}
	for _, pct := range []float64{cfg.DownsampleFloatStart, cfg.DownsampleFloatEnd, cfg.DownsampleTargetStart, cfg.DownsampleTargetEnd} {
		if pct < 0 || pct >= 100 || math.IsNaN(pct) {
			return nil, wrapInvalidInput("downsample percentage must be in [0, 100), got %g", pct)
		}
	}
	if err := floating.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	levels := cfg.NumPyramidLayers
	iterationsPerLevel := cfg.NumIterations / levels
	if iterationsPerLevel < 1 {
		iterationsPerLevel = 1
	}
	nonrigid := cfg.Nonrigid
	nonrigid.NumIterations = iterationsPerLevel
	ramp := rampSchedule{total: iterationsPerLevel * levels, cfg: nonrigid}

	original := floating.Clone()
	result := &RegistrationResult{}
	var previous *Mesh
	var previousIndices []int
	for level := 0; level < levels; level++ {
		floatRatio := levelRatio(cfg.DownsampleFloatStart, cfg.DownsampleFloatEnd, level, levels)
		targetRatio := levelRatio(cfg.DownsampleTargetStart, cfg.DownsampleTargetEnd, level, levels)

		levelFloating, levelIndices, err := DecimateMesh(original, floatRatio)
		if err != nil {
			return nil, err
		}
		levelTarget, _, err := DecimateMesh(target, targetRatio)
		if err != nil {
			return nil, err
		}
		if previous != nil {
			if err := ScaleShiftMesh(original, previous, previousIndices, levelFloating, levelIndices); err != nil {
				return nil, err
			}
		}

		field := NewDisplacementField(levelFloating)
		if err := runNonrigidIterations(levelFloating, levelTarget, field, nonrigid, ramp, level*iterationsPerLevel, level, result); err != nil {
			return nil, err
		}
		previous, previousIndices = levelFloating, levelIndices
	}

	final := previous
	if final.NumVertices() != original.NumVertices() {
		full := original.Clone()
		identity := make([]int, original.NumVertices())
		for i := range identity {
			identity[i] = i
		}
		if err := ScaleShiftMesh(original, final, previousIndices, full, identity); err != nil {
			return nil, err
		}
		final = full
	}
	commit(floating, final)
	return result, nil
}

// rampSchedule derives the per-iteration viscous and elastic smoothing
// counts from a linear ramp over the whole registration, which the pyramid
// driver splits across its levels.
type rampSchedule struct {
	total int
	cfg   NonrigidConfig
}

func (r rampSchedule) at(iteration int) (viscous, elastic int) {
	return rampCount(r.cfg.ViscousIterationsStart, r.cfg.ViscousIterationsEnd, iteration, r.total),
		rampCount(r.cfg.ElasticIterationsStart, r.cfg.ElasticIterationsEnd, iteration, r.total)
}

// rampCount interpolates linearly from start at iteration 0 to end at
// iteration total-1, floored and clamped at 1.
func rampCount(start, end, iteration, total int) int {
	v := start
	if total > 1 {
		v = start + int(math.Floor(float64(end-start)*float64(iteration)/float64(total-1)))
	}
	if v < 1 {
		v = 1
	}
	return v
}

// runNonrigidIterations advances work through the configured number of
// correspondence, inlier and visco-elastic steps, reporting each iteration
// at its global index.
func runNonrigidIterations(work, target *Mesh, field *DisplacementField, cfg NonrigidConfig, ramp rampSchedule, globalStart, level int, result *RegistrationResult) error {
	for it := 0; it < cfg.NumIterations; it++ {
		global := globalStart + it
		corresponding, flags, err := ComputeCorrespondences(work, target, cfg.Correspondence)
		if err != nil {
			return err
		}
		weights, err := ComputeInlierWeights(work, corresponding, flags, cfg.Inlier)
		if err != nil {
			return err
		}
		result.Residual = weightedRMS(work, corresponding, weights)
		viscous, elastic := ramp.at(global)
		err = ComputeNonrigidTransformation(work, corresponding, weights, field, ViscoElasticConfig{
			SmoothingNeighbours: cfg.SmoothingNeighbours,
			SigmaSmoothing:      cfg.SigmaSmoothing,
			ViscousIterations:   viscous,
			ElasticIterations:   elastic,
		})
		if err != nil {
			return err
		}
		result.Iterations++
		if cfg.OnIteration != nil {
			cfg.OnIteration(IterationInfo{Stage: "nonrigid", Level: level, Iteration: global, Residual: result.Residual, Floating: work})
		}
	}
	return nil
}

// levelRatio interpolates the downsample percentage for a level and returns
// it as a [0,1) ratio. Level 0 is the coarsest. With a single level the End
// percentage applies.
func levelRatio(startPct, endPct float64, level, levels int) float64 {
	if levels == 1 {
		return endPct / 100
	}
	t := float64(level) / float64(levels-1)
	return (startPct + (endPct-startPct)*t) / 100
}

// weightedRMS is the inlier-weighted root-mean-square positional residual.
// Zero total weight yields 0.
func weightedRMS(floating *Mesh, corresponding []Feature, weights []float64) float64 {
	var sum, total float64
	for i := range weights {
		w := weights[i]
		if w == 0 {
			continue
		}
		d := corresponding[i].Position.Sub(floating.Features[i].Position)
		sum += w * d.Dot(d)
		total += w
	}
	if total <= 0 {
		return 0
	}
	return math.Sqrt(sum / total)
}

// commit copies the finished working state into the caller's mesh. Faces are
// untouched: registration preserves topology.
func commit(dst, src *Mesh) {
	copy(dst.Features, src.Features)
	copy(dst.Flags, src.Flags)
}
