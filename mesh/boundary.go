package mesh

// FlagBoundary sets the flag of every vertex on an open mesh boundary to 0.
// A vertex is on the boundary when any of its incident edges belongs to
// exactly one face. Boundary correspondences drag interior vertices toward
// the rim on partially overlapping scans, so drivers are usually run with
// boundaries flagged out. The count of newly flagged vertices is returned.
func FlagBoundary(m *Mesh) (int, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	type edge struct{ a, b int }
	edgeFaces := make(map[edge]int)
	for _, face := range m.Faces {
		for e := 0; e < 3; e++ {
			a, b := face[e], face[(e+1)%3]
			if a > b {
				a, b = b, a
			}
			edgeFaces[edge{a, b}]++
		}
	}
	flagged := 0
	for e, count := range edgeFaces {
		if count != 1 {
			continue
		}
		for _, v := range [2]int{e.a, e.b} {
			if m.Flags[v] != 0 {
				m.Flags[v] = 0
				flagged++
			}
		}
	}
	return flagged, nil
}
