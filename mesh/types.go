package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// Feature is the per-vertex state carried through registration: a 3-D
// position and a unit-length surface normal. Neighbor searches treat the
// concatenation as a single 6-D point.
type Feature struct {
	Position r3.Vector
	Normal   r3.Vector
}

// Vec6 returns the feature as a flat 6-vector (x, y, z, nx, ny, nz).
func (f Feature) Vec6() [6]float64 {
	return [6]float64{f.Position.X, f.Position.Y, f.Position.Z, f.Normal.X, f.Normal.Y, f.Normal.Z}
}

// Mesh is a triangle mesh with per-vertex features and flags. Flags are
// binary: a target vertex flagged 0 never attracts correspondences, and a
// floating vertex flagged 0 still gets a correspondence but carries no
// weight in the rigid and non-rigid transforms (boundary vertices,
// user-masked regions).
type Mesh struct {
	Features []Feature
	Faces    [][3]int
	Flags    []float64
}

// NewMesh builds a mesh from raw positions and faces. Normals are computed
// from face connectivity and all flags start at 1.
func NewMesh(positions []r3.Vector, faces [][3]int) *Mesh {
	m := &Mesh{
		Features: make([]Feature, len(positions)),
		Faces:    faces,
		Flags:    make([]float64, len(positions)),
	}
	for i, p := range positions {
		m.Features[i].Position = p
		m.Flags[i] = 1
	}
	m.RecomputeNormals()
	return m
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int { return len(m.Features) }

// NumFaces returns the triangle count.
func (m *Mesh) NumFaces() int { return len(m.Faces) }

// Positions returns a copy of the vertex positions.
func (m *Mesh) Positions() []r3.Vector {
	out := make([]r3.Vector, len(m.Features))
	for i := range m.Features {
		out[i] = m.Features[i].Position
	}
	return out
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Features: make([]Feature, len(m.Features)),
		Faces:    make([][3]int, len(m.Faces)),
		Flags:    make([]float64, len(m.Flags)),
	}
	copy(c.Features, m.Features)
	copy(c.Faces, m.Faces)
	copy(c.Flags, m.Flags)
	return c
}

// Validate checks the structural invariants every registration entry point
// relies on: non-empty vertex set, aligned flag array, in-range face indices,
// finite coordinates and non-negative flags.
func (m *Mesh) Validate() error {
	if m == nil || len(m.Features) == 0 {
		return wrapInvalidInput("mesh has no vertices")
	}
	if len(m.Flags) != len(m.Features) {
		return wrapInvalidInput("flags length %d does not match vertex count %d", len(m.Flags), len(m.Features))
	}
	n := len(m.Features)
	for _, face := range m.Faces {
		for _, v := range face {
			if v < 0 || v >= n {
				return wrapInvalidInput("face references vertex %d, mesh has %d vertices", v, n)
			}
		}
	}
	for i, f := range m.Features {
		if !finiteVec(f.Position) || !finiteVec(f.Normal) {
			return wrapInvalidInput("non-finite feature at vertex %d", i)
		}
		if m.Flags[i] < 0 {
			return wrapInvalidInput("negative flag at vertex %d", i)
		}
	}
	return nil
}

// Diameter returns the diagonal length of the axis-aligned bounding box.
func (m *Mesh) Diameter() float64 {
	if len(m.Features) == 0 {
		return 0
	}
	min := m.Features[0].Position
	max := min
	for _, f := range m.Features[1:] {
		p := f.Position
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		min.Z = math.Min(min.Z, p.Z)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
		max.Z = math.Max(max.Z, p.Z)
	}
	return max.Sub(min).Norm()
}

// NormalizeNormals rescales every vertex normal to unit length. Normals with
// near-zero magnitude are left untouched so callers can decide how to repair
// them (RecomputeNormals keeps the previous direction in that case).
func (m *Mesh) NormalizeNormals() {
	for i := range m.Features {
		n := m.Features[i].Normal
		norm := n.Norm()
		if norm > normalEpsilon {
			m.Features[i].Normal = n.Mul(1 / norm)
		}
	}
}

// RecomputeNormals rebuilds vertex normals from face connectivity using
// area-weighted incident face normals. Vertices with no incident area keep
// their previous normal.
func (m *Mesh) RecomputeNormals() {
	accum := make([]r3.Vector, len(m.Features))
	for _, face := range m.Faces {
		a := m.Features[face[0]].Position
		b := m.Features[face[1]].Position
		c := m.Features[face[2]].Position
		// Cross product magnitude is twice the face area, which gives the
		// area weighting for free.
		n := b.Sub(a).Cross(c.Sub(a))
		accum[face[0]] = accum[face[0]].Add(n)
		accum[face[1]] = accum[face[1]].Add(n)
		accum[face[2]] = accum[face[2]].Add(n)
	}
	for i := range m.Features {
		norm := accum[i].Norm()
		if norm > normalEpsilon {
			m.Features[i].Normal = accum[i].Mul(1 / norm)
		}
	}
}

const normalEpsilon = 1e-12

func finiteVec(v r3.Vector) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

func checkFiniteFeatures(features []Feature) error {
	for i, f := range features {
		if !finiteVec(f.Position) || !finiteVec(f.Normal) {
			return wrapOverflow("non-finite value at vertex %d", i)
		}
	}
	return nil
}
