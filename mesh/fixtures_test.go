package mesh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// makeCube returns the unit cube: 8 vertices, 12 triangles.
func makeCube() *Mesh {
	positions := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
	}
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{2, 3, 7}, {2, 7, 6},
		{1, 2, 6}, {1, 6, 5},
		{3, 0, 4}, {3, 4, 7},
	}
	return NewMesh(positions, faces)
}

// makeSphere returns a UV sphere with the given resolution. rings=8,
// segments=12 gives 98 vertices.
func makeSphere(rings, segments int, radius float64) *Mesh {
	var positions []r3.Vector
	positions = append(positions, r3.Vector{Z: radius})
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			positions = append(positions, r3.Vector{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			})
		}
	}
	positions = append(positions, r3.Vector{Z: -radius})
	south := len(positions) - 1

	ring := func(r, s int) int { return 1 + (r-1)*segments + s%segments }
	var faces [][3]int
	for s := 0; s < segments; s++ {
		faces = append(faces, [3]int{0, ring(1, s), ring(1, s+1)})
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			faces = append(faces, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	for s := 0; s < segments; s++ {
		faces = append(faces, [3]int{south, ring(rings-1, s+1), ring(rings-1, s)})
	}
	return NewMesh(positions, faces)
}

// makeDisk returns a flat triangulated disk in the z=0 plane: a center
// vertex plus concentric rings.
func makeDisk(rings, segments int, radius float64) *Mesh {
	positions := []r3.Vector{{}}
	for r := 1; r <= rings; r++ {
		rr := radius * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			positions = append(positions, r3.Vector{X: rr * math.Cos(theta), Y: rr * math.Sin(theta)})
		}
	}
	ring := func(r, s int) int { return 1 + (r-1)*segments + s%segments }
	var faces [][3]int
	for s := 0; s < segments; s++ {
		faces = append(faces, [3]int{0, ring(1, s), ring(1, s+1)})
	}
	for r := 1; r < rings; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			faces = append(faces, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	return NewMesh(positions, faces)
}

// makeBlob returns a randomized closed-ish surface without rotational
// symmetry, for transform-recovery tests where symmetric shapes are
// ambiguous. It perturbs a sphere radially with a deterministic seed.
func makeBlob(seed int64) *Mesh {
	rng := rand.New(rand.NewSource(seed))
	m := makeSphere(8, 12, 1)
	for i := range m.Features {
		scale := 1 + 0.3*rng.Float64()
		m.Features[i].Position = m.Features[i].Position.Mul(scale)
	}
	m.RecomputeNormals()
	return m
}

// applyTransform transforms positions and rotates normals, the way the
// rigid stage does.
func applyTransform(m *Mesh, t RigidTransform) {
	for i := range m.Features {
		m.Features[i].Position = t.ApplyPosition(m.Features[i].Position)
		m.Features[i].Normal = t.Rotation.Apply(m.Features[i].Normal)
	}
	m.NormalizeNormals()
}

// yawRotation is a rotation about the z axis.
func yawRotation(radians float64) RotationMatrix {
	c, s := math.Cos(radians), math.Sin(radians)
	return RotationMatrix{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func maxPositionDelta(a, b *Mesh) float64 {
	max := 0.0
	for i := range a.Features {
		d := a.Features[i].Position.Sub(b.Features[i].Position).Norm()
		if d > max {
			max = d
		}
	}
	return max
}

func meanPositionDelta(a, b *Mesh) float64 {
	var sum float64
	for i := range a.Features {
		sum += a.Features[i].Position.Sub(b.Features[i].Position).Norm()
	}
	return sum / float64(len(a.Features))
}

func checkUnitNormals(t *testing.T, m *Mesh) {
	t.Helper()
	for i, f := range m.Features {
		if !almostEqual(f.Normal.Norm(), 1, 1e-6) {
			t.Fatalf("vertex %d normal has length %g, want 1", i, f.Normal.Norm())
		}
	}
}

// onesWeights returns a weight vector of all 1.
func onesWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// selfCorrespondences pairs every vertex with itself on the given mesh.
func selfCorrespondences(m *Mesh) []Feature {
	corr := make([]Feature, len(m.Features))
	copy(corr, m.Features)
	return corr
}
