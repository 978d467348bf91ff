package mesh

import (
	"errors"
	"testing"
)

func TestDecimateMesh_RatioZeroIsCopy(t *testing.T) {
	m := makeSphere(6, 8, 1)
	out, indices, err := DecimateMesh(m, 0)
	if err != nil {
		t.Fatalf("DecimateMesh: %v", err)
	}
	if out.NumVertices() != m.NumVertices() || out.NumFaces() != m.NumFaces() {
		t.Fatalf("copy has %d vertices / %d faces, want %d / %d",
			out.NumVertices(), out.NumFaces(), m.NumVertices(), m.NumFaces())
	}
	for i, idx := range indices {
		if idx != i {
			t.Fatalf("mapping[%d] = %d, want identity", i, idx)
		}
	}
	out.Features[0].Position.X += 1
	if m.Features[0].Position.X == out.Features[0].Position.X {
		t.Error("decimated mesh shares feature storage with the input")
	}
}

func TestDecimateMesh_ReachesTarget(t *testing.T) {
	m := makeSphere(8, 12, 1)
	out, indices, err := DecimateMesh(m, 0.8)
	if err != nil {
		t.Fatalf("DecimateMesh: %v", err)
	}
	want := 20 // ceil(98 * 0.2)
	if out.NumVertices() != want {
		t.Errorf("decimated to %d vertices, want %d", out.NumVertices(), want)
	}
	if len(indices) != out.NumVertices() {
		t.Fatalf("mapping has %d entries for %d vertices", len(indices), out.NumVertices())
	}
	if out.NumFaces() == 0 {
		t.Error("decimated mesh has no faces")
	}
}

func TestDecimateMesh_VerticesAreInputSubset(t *testing.T) {
	m := makeBlob(13)
	out, indices, err := DecimateMesh(m, 0.6)
	if err != nil {
		t.Fatalf("DecimateMesh: %v", err)
	}
	for i, idx := range indices {
		if i > 0 && idx <= indices[i-1] {
			t.Fatalf("mapping not strictly ascending at %d: %v", i, indices[:i+1])
		}
		if idx < 0 || idx >= m.NumVertices() {
			t.Fatalf("mapping[%d] = %d out of range", i, idx)
		}
		if out.Features[i].Position != m.Features[idx].Position {
			t.Fatalf("vertex %d moved during decimation", i)
		}
		if out.Flags[i] != m.Flags[idx] {
			t.Fatalf("vertex %d flag changed during decimation", i)
		}
	}
}

func TestDecimateMesh_PreservesFlags(t *testing.T) {
	m := makeSphere(8, 12, 1)
	for i, f := range m.Features {
		if f.Position.Z < 0 {
			m.Flags[i] = 0
		}
	}
	out, indices, err := DecimateMesh(m, 0.5)
	if err != nil {
		t.Fatalf("DecimateMesh: %v", err)
	}
	for i := range out.Flags {
		if out.Flags[i] != m.Flags[indices[i]] {
			t.Fatalf("flag %d = %g, want %g from original vertex %d",
				i, out.Flags[i], m.Flags[indices[i]], indices[i])
		}
	}
}

func TestDecimateMesh_FaceIndicesValid(t *testing.T) {
	m := makeSphere(8, 12, 1)
	out, _, err := DecimateMesh(m, 0.7)
	if err != nil {
		t.Fatalf("DecimateMesh: %v", err)
	}
	for fi, face := range out.Faces {
		for _, v := range face {
			if v < 0 || v >= out.NumVertices() {
				t.Fatalf("face %d references vertex %d of %d", fi, v, out.NumVertices())
			}
		}
		if face[0] == face[1] || face[1] == face[2] || face[2] == face[0] {
			t.Fatalf("face %d is degenerate: %v", fi, face)
		}
	}
	checkUnitNormals(t, out)
}

func TestDecimateMesh_InvalidRatio(t *testing.T) {
	m := makeCube()
	for _, ratio := range []float64{-0.1, 1, 1.5} {
		if _, _, err := DecimateMesh(m, ratio); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ratio %g: err = %v, want ErrInvalidInput", ratio, err)
		}
	}
}
