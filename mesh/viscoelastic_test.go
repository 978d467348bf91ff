package mesh

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
)

func defaultViscoElasticConfig() ViscoElasticConfig {
	return ViscoElasticConfig{
		SmoothingNeighbours: 8,
		SigmaSmoothing:      1,
		ViscousIterations:   3,
		ElasticIterations:   3,
	}
}

func offsetCorrespondences(m *Mesh, offset r3.Vector) []Feature {
	corr := make([]Feature, len(m.Features))
	for i, f := range m.Features {
		corr[i] = Feature{Position: f.Position.Add(offset), Normal: f.Normal}
	}
	return corr
}

func TestNewDisplacementField(t *testing.T) {
	floating := makeSphere(6, 8, 1)
	field := NewDisplacementField(floating)

	if len(field.Origins) != floating.NumVertices() || len(field.Vectors) != floating.NumVertices() {
		t.Fatalf("field sized %d/%d, want %d", len(field.Origins), len(field.Vectors), floating.NumVertices())
	}
	for i := range field.Origins {
		if field.Origins[i] != floating.Features[i].Position {
			t.Fatalf("origin %d does not match the mesh position", i)
		}
		if field.Vectors[i].Norm() != 0 {
			t.Fatalf("vector %d = %v, want zero", i, field.Vectors[i])
		}
	}
}

func TestComputeNonrigidTransformation_UniformPull(t *testing.T) {
	floating := makeSphere(8, 12, 1)
	offset := r3.Vector{X: 0.5, Z: -0.2}
	corr := offsetCorrespondences(floating, offset)
	weights := onesWeights(floating.NumVertices())
	field := NewDisplacementField(floating)
	before := floating.Clone()

	// A constant force field is a fixed point of the neighborhood
	// averaging, so the pull lands exactly.
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, defaultViscoElasticConfig()); err != nil {
		t.Fatalf("ComputeNonrigidTransformation: %v", err)
	}
	for i := range floating.Features {
		want := before.Features[i].Position.Add(offset)
		if d := floating.Features[i].Position.Sub(want).Norm(); d > 1e-9 {
			t.Fatalf("vertex %d off by %g", i, d)
		}
	}
	checkUnitNormals(t, floating)
}

func TestComputeNonrigidTransformation_Accumulates(t *testing.T) {
	floating := makeSphere(8, 12, 1)
	weights := onesWeights(floating.NumVertices())
	field := NewDisplacementField(floating)
	step := r3.Vector{X: 0.5}

	for call := 0; call < 2; call++ {
		corr := offsetCorrespondences(floating, step)
		if err := ComputeNonrigidTransformation(floating, corr, weights, field, defaultViscoElasticConfig()); err != nil {
			t.Fatalf("call %d: %v", call, err)
		}
	}
	for i := range field.Vectors {
		if d := field.Vectors[i].Sub(r3.Vector{X: 1}).Norm(); d > 1e-9 {
			t.Fatalf("vertex %d accumulated %v, want {1 0 0}", i, field.Vectors[i])
		}
		want := field.Origins[i].Add(field.Vectors[i])
		if floating.Features[i].Position != want {
			t.Fatalf("vertex %d position not origin plus displacement", i)
		}
	}
}

func TestComputeNonrigidTransformation_ZeroWeightsNoOp(t *testing.T) {
	floating := makeSphere(6, 8, 1)
	corr := offsetCorrespondences(floating, r3.Vector{X: 2})
	weights := make([]float64, floating.NumVertices())
	field := NewDisplacementField(floating)
	before := floating.Clone()

	if err := ComputeNonrigidTransformation(floating, corr, weights, field, defaultViscoElasticConfig()); err != nil {
		t.Fatalf("ComputeNonrigidTransformation: %v", err)
	}
	if d := maxPositionDelta(floating, before); d != 0 {
		t.Errorf("mesh moved by %g with all-zero weights", d)
	}
}

func TestComputeNonrigidTransformation_UnreliableVertexStays(t *testing.T) {
	floating := makeSphere(8, 12, 1)
	offset := r3.Vector{X: 0.3}
	corr := offsetCorrespondences(floating, offset)
	weights := onesWeights(floating.NumVertices())
	weights[5] = 0
	field := NewDisplacementField(floating)
	before := floating.Clone()

	cfg := defaultViscoElasticConfig()
	cfg.ViscousIterations = 0
	cfg.ElasticIterations = 0
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, cfg); err != nil {
		t.Fatalf("ComputeNonrigidTransformation: %v", err)
	}
	if d := floating.Features[5].Position.Sub(before.Features[5].Position).Norm(); d != 0 {
		t.Errorf("zero-weight vertex moved by %g without smoothing", d)
	}
	if d := floating.Features[20].Position.Sub(before.Features[20].Position.Add(offset)).Norm(); d > 1e-12 {
		t.Errorf("weighted vertex off its correspondence by %g", d)
	}
}

func TestComputeNonrigidTransformation_FlaggedVertexStays(t *testing.T) {
	floating := makeSphere(8, 12, 1)
	offset := r3.Vector{X: 0.3}
	corr := offsetCorrespondences(floating, offset)
	weights := onesWeights(floating.NumVertices())
	floating.Flags[5] = 0
	field := NewDisplacementField(floating)
	before := floating.Clone()

	cfg := defaultViscoElasticConfig()
	cfg.ViscousIterations = 0
	cfg.ElasticIterations = 0
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, cfg); err != nil {
		t.Fatalf("ComputeNonrigidTransformation: %v", err)
	}
	if d := floating.Features[5].Position.Sub(before.Features[5].Position).Norm(); d != 0 {
		t.Errorf("flagged-out vertex moved by %g despite nonzero inlier weight", d)
	}
	if d := floating.Features[20].Position.Sub(before.Features[20].Position.Add(offset)).Norm(); d > 1e-12 {
		t.Errorf("unflagged vertex off its correspondence by %g", d)
	}
}

func TestComputeNonrigidTransformation_SmoothingDampsSpike(t *testing.T) {
	floating := makeSphere(8, 12, 1)
	corr := selfCorrespondences(floating)
	spike := r3.Vector{X: 1}
	corr[30].Position = corr[30].Position.Add(spike)
	weights := onesWeights(floating.NumVertices())
	field := NewDisplacementField(floating)
	before := floating.Clone()

	if err := ComputeNonrigidTransformation(floating, corr, weights, field, defaultViscoElasticConfig()); err != nil {
		t.Fatalf("ComputeNonrigidTransformation: %v", err)
	}
	moved := floating.Features[30].Position.Sub(before.Features[30].Position).Norm()
	if moved >= spike.Norm() {
		t.Errorf("spiked vertex moved %g, want less than the raw pull %g", moved, spike.Norm())
	}
	if moved == 0 {
		t.Error("spiked vertex did not move at all")
	}
}

func TestComputeNonrigidTransformation_InvalidInput(t *testing.T) {
	floating := makeCube()
	corr := selfCorrespondences(floating)
	weights := onesWeights(floating.NumVertices())
	field := NewDisplacementField(floating)
	cfg := defaultViscoElasticConfig()

	if err := ComputeNonrigidTransformation(floating, corr[:2], weights, field, cfg); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("short correspondences: err = %v, want ErrInvalidInput", err)
	}
	if err := ComputeNonrigidTransformation(floating, corr, weights, nil, cfg); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil field: err = %v, want ErrInvalidInput", err)
	}
	bad := cfg
	bad.SmoothingNeighbours = 0
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("k=0: err = %v, want ErrInvalidInput", err)
	}
	bad = cfg
	bad.SigmaSmoothing = 0
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("sigma=0: err = %v, want ErrInvalidInput", err)
	}
	bad = cfg
	bad.ViscousIterations = -1
	if err := ComputeNonrigidTransformation(floating, corr, weights, field, bad); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative iterations: err = %v, want ErrInvalidInput", err)
	}
	negative := onesWeights(floating.NumVertices())
	negative[0] = -0.5
	if err := ComputeNonrigidTransformation(floating, corr, negative, field, cfg); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative weight: err = %v, want ErrInvalidInput", err)
	}
}
