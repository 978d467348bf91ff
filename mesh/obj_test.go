package mesh

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const triangleOBJ = `# simple triangle
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
f 1//1 2//1 3//1
`

func TestReadOBJ_Triangle(t *testing.T) {
	m, err := ReadOBJ(strings.NewReader(triangleOBJ))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if m.NumVertices() != 3 || m.NumFaces() != 1 {
		t.Fatalf("got %d vertices / %d faces, want 3 / 1", m.NumVertices(), m.NumFaces())
	}
	if m.Faces[0] != [3]int{0, 1, 2} {
		t.Errorf("face = %v, want [0 1 2]", m.Faces[0])
	}
	for i, f := range m.Features {
		if !almostEqual(f.Normal.Z, 1, 1e-12) {
			t.Errorf("vertex %d normal = %v, want +z from the file", i, f.Normal)
		}
	}
}

func TestReadOBJ_QuadTriangulation(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`
	m, err := ReadOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if m.NumFaces() != 2 {
		t.Fatalf("quad produced %d faces, want 2", m.NumFaces())
	}
	if m.Faces[0] != [3]int{0, 1, 2} || m.Faces[1] != [3]int{0, 2, 3} {
		t.Errorf("fan = %v, want [[0 1 2] [0 2 3]]", m.Faces)
	}
}

func TestReadOBJ_FaceRefForms(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vn 0 0 1
f 1 2/1 3/1/1
f -3 -2//-1 -1
`
	m, err := ReadOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if m.NumFaces() != 2 {
		t.Fatalf("got %d faces, want 2", m.NumFaces())
	}
	for _, face := range m.Faces {
		if face != [3]int{0, 1, 2} {
			t.Errorf("face = %v, want [0 1 2]", face)
		}
	}
}

func TestReadOBJ_NonUnitNormalsRescaled(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 3
f 1//1 2//1 3//1
`
	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	m, err := ReadOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	checkUnitNormals(t, m)
	for i, f := range m.Features {
		if !almostEqual(f.Normal.Z, 1, 1e-12) {
			t.Errorf("vertex %d normal = %v, want rescaled +z", i, f.Normal)
		}
	}
	if !strings.Contains(logged.String(), "rescaled") {
		t.Errorf("non-unit normals were fixed without a log line: %q", logged.String())
	}

	logged.Reset()
	if _, err := ReadOBJ(strings.NewReader(triangleOBJ)); err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if logged.Len() != 0 {
		t.Errorf("unit normals produced a log line: %q", logged.String())
	}
}

func TestReadOBJ_ComputedNormals(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`
	m, err := ReadOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	checkUnitNormals(t, m)
	if !almostEqual(m.Features[0].Normal.Z, 1, 1e-12) {
		t.Errorf("computed normal = %v, want +z", m.Features[0].Normal)
	}
}

func TestReadOBJ_Errors(t *testing.T) {
	cases := map[string]string{
		"no vertices":         "vn 0 0 1\n",
		"bad coordinate":      "v 0 zero 0\n",
		"short face":          "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2\n",
		"index out of range":  "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n",
		"zero index":          "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 0\n",
		"bad normal index":    "v 0 0 0\nv 1 0 0\nv 0 1 0\nvn 0 0 1\nf 1//9 2//1 3//1\n",
		"short vertex record": "v 1 2\n",
	}
	for name, src := range cases {
		if _, err := ReadOBJ(strings.NewReader(src)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestWriteOBJ_RoundTrip(t *testing.T) {
	original := makeSphere(6, 8, 1)

	var buf bytes.Buffer
	if err := WriteOBJ(&buf, original); err != nil {
		t.Fatalf("WriteOBJ: %v", err)
	}
	parsed, err := ReadOBJ(&buf)
	if err != nil {
		t.Fatalf("ReadOBJ: %v", err)
	}
	if parsed.NumVertices() != original.NumVertices() || parsed.NumFaces() != original.NumFaces() {
		t.Fatalf("round trip changed size: %d/%d vs %d/%d",
			parsed.NumVertices(), parsed.NumFaces(), original.NumVertices(), original.NumFaces())
	}
	if d := maxPositionDelta(parsed, original); d > 1e-6 {
		t.Errorf("round trip moved positions by up to %g", d)
	}
	for i := range parsed.Faces {
		if parsed.Faces[i] != original.Faces[i] {
			t.Fatalf("face %d changed: %v vs %v", i, parsed.Faces[i], original.Faces[i])
		}
	}
}

func TestOBJFiles_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cube.obj")
	original := makeCube()

	if err := WriteOBJFile(path, original); err != nil {
		t.Fatalf("WriteOBJFile: %v", err)
	}
	floating, target, err := ReadOBJFiles(path, path)
	if err != nil {
		t.Fatalf("ReadOBJFiles: %v", err)
	}
	if floating.NumVertices() != 8 || target.NumVertices() != 8 {
		t.Fatalf("got %d/%d vertices, want 8", floating.NumVertices(), target.NumVertices())
	}

	if _, _, err := ReadOBJFiles(path, filepath.Join(dir, "missing.obj")); err == nil {
		t.Error("missing target file did not error")
	}
}
