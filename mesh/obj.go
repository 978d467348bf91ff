package mesh

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// ReadOBJ parses a Wavefront OBJ mesh from r. Vertices, vertex normals and
// faces are honored; texture coordinates, groups and materials are skipped.
// Faces with more than three corners are fan-triangulated. Indices may be
// negative (relative to the end of the list read so far). If the file
// carries no normals, they are computed from face connectivity; non-unit
// input normals are rescaled to unit length and logged.
func ReadOBJ(r io.Reader) (*Mesh, error) {
	var positions []r3.Vector
	var normals []r3.Vector
	var normalIndex []int
	var faces [][3]int

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, wrapInvalidInput("obj line %d: %v", lineNo, err)
			}
			positions = append(positions, v)
		case "vn":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, wrapInvalidInput("obj line %d: %v", lineNo, err)
			}
			normals = append(normals, v)
		case "f":
			if len(fields) < 4 {
				return nil, wrapInvalidInput("obj line %d: face needs at least 3 corners", lineNo)
			}
			corners := make([]int, 0, len(fields)-1)
			cornerNormals := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				vi, ni, err := parseFaceRef(ref, len(positions), len(normals))
				if err != nil {
					return nil, wrapInvalidInput("obj line %d: %v", lineNo, err)
				}
				corners = append(corners, vi)
				cornerNormals = append(cornerNormals, ni)
			}
			for i := 1; i < len(corners)-1; i++ {
				faces = append(faces, [3]int{corners[0], corners[i], corners[i+1]})
			}
			for i, vi := range corners {
				if cornerNormals[i] >= 0 {
					for len(normalIndex) <= vi {
						normalIndex = append(normalIndex, -1)
					}
					normalIndex[vi] = cornerNormals[i]
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, wrapInvalidInput("obj read failed: %v", err)
	}
	if len(positions) == 0 {
		return nil, wrapInvalidInput("obj contains no vertices")
	}

	m := NewMesh(positions, faces)
	if len(normals) > 0 {
		nonUnit := 0
		for vi := range m.Features {
			if vi < len(normalIndex) && normalIndex[vi] >= 0 {
				nv := normals[normalIndex[vi]]
				if math.Abs(nv.Norm()-1) > 1e-6 {
					nonUnit++
				}
				m.Features[vi].Normal = nv
			}
		}
		m.NormalizeNormals()
		if nonUnit > 0 {
			log.Printf("ReadOBJ: rescaled %d non-unit vertex normals", nonUnit)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadOBJFile reads an OBJ mesh from the named file.
func ReadOBJFile(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open obj: %w", err)
	}
	defer f.Close()
	m, err := ReadOBJ(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ReadOBJFiles loads the floating and target meshes of one registration.
func ReadOBJFiles(floatingPath, targetPath string) (floating, target *Mesh, err error) {
	floating, err = ReadOBJFile(floatingPath)
	if err != nil {
		return nil, nil, err
	}
	target, err = ReadOBJFile(targetPath)
	if err != nil {
		return nil, nil, err
	}
	return floating, target, nil
}

// WriteOBJ writes the mesh to w as Wavefront OBJ, with per-vertex normals
// referenced by the faces.
func WriteOBJ(w io.Writer, m *Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, f := range m.Features {
		fmt.Fprintf(bw, "v %g %g %g\n", f.Position.X, f.Position.Y, f.Position.Z)
	}
	for _, f := range m.Features {
		fmt.Fprintf(bw, "vn %g %g %g\n", f.Normal.X, f.Normal.Y, f.Normal.Z)
	}
	for _, face := range m.Faces {
		fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d\n",
			face[0]+1, face[0]+1, face[1]+1, face[1]+1, face[2]+1, face[2]+1)
	}
	return bw.Flush()
}

// WriteOBJFile writes the mesh to the named file.
func WriteOBJFile(path string, m *Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create obj: %w", err)
	}
	if err := WriteOBJ(f, m); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func parseVec3(fields []string) (r3.Vector, error) {
	if len(fields) < 3 {
		return r3.Vector{}, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("bad coordinate %q", fields[i])
		}
		out[i] = v
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}

// parseFaceRef resolves one face corner of the form i, i/t, i//n or i/t/n
// into zero-based vertex and normal indices (normal -1 when absent).
// OBJ indices are 1-based; negative values count back from the most
// recently read element.
func parseFaceRef(ref string, numVertices, numNormals int) (vertex, normal int, err error) {
	parts := strings.Split(ref, "/")
	vertex, err = resolveOBJIndex(parts[0], numVertices)
	if err != nil {
		return 0, 0, err
	}
	normal = -1
	if len(parts) == 3 && parts[2] != "" {
		normal, err = resolveOBJIndex(parts[2], numNormals)
		if err != nil {
			return 0, 0, err
		}
	}
	return vertex, normal, nil
}

func resolveOBJIndex(s string, count int) (int, error) {
	raw, err := strconv.Atoi(s)
	if err != nil || raw == 0 {
		return 0, fmt.Errorf("bad index %q", s)
	}
	idx := raw - 1
	if raw < 0 {
		idx = count + raw
	}
	if idx < 0 || idx >= count {
		return 0, fmt.Errorf("index %d out of range (%d elements)", raw, count)
	}
	return idx, nil
}
