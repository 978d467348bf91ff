package mesh

import (
	"container/heap"
	"math"
)

// quadric is a symmetric 4x4 plane quadric stored as its upper triangle
// (a2 ab ac ad b2 bc bd c2 cd d2).
type quadric [10]float64

func (q *quadric) add(o *quadric) {
	for i := range q {
		q[i] += o[i]
	}
}

func (q *quadric) addPlane(a, b, c, d float64) {
	q[0] += a * a
	q[1] += a * b
	q[2] += a * c
	q[3] += a * d
	q[4] += b * b
	q[5] += b * c
	q[6] += b * d
	q[7] += c * c
	q[8] += c * d
	q[9] += d * d
}

// evaluate returns v^T Q v for the homogeneous point (x, y, z, 1).
func (q *quadric) evaluate(x, y, z float64) float64 {
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// collapseCandidate proposes removing vertex from by merging it into to.
// Stale candidates are detected through the version counters and skipped on
// pop instead of being removed eagerly.
type collapseCandidate struct {
	from, to               int
	cost                   float64
	fromVersion, toVersion int
}

type collapseQueue []collapseCandidate

func (q collapseQueue) Len() int { return len(q) }
func (q collapseQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	if q[i].from != q[j].from {
		return q[i].from < q[j].from
	}
	return q[i].to < q[j].to
}
func (q collapseQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *collapseQueue) Push(x interface{}) {
	*q = append(*q, x.(collapseCandidate))
}
func (q *collapseQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// DecimateMesh reduces the mesh to roughly (1-ratio) of its vertices by
// greedy quadric-error edge collapses. Surviving vertices keep their
// original positions and flags; the returned index slice maps each new
// vertex to its row in the input mesh, which is what scale shifting between
// resolution levels keys on. A ratio of 0 returns a plain copy with the
// identity mapping.
//
// Collapses always merge a vertex into one of its neighbors, so the
// decimated vertex set is a subset of the input vertex set.
func DecimateMesh(m *Mesh, ratio float64) (*Mesh, []int, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if ratio < 0 || ratio >= 1 || math.IsNaN(ratio) {
		return nil, nil, wrapInvalidInput("downsample ratio must be in [0, 1), got %g", ratio)
	}
	n := m.NumVertices()
	if ratio == 0 {
		identity := make([]int, n)
		for i := range identity {
			identity[i] = i
		}
		return m.Clone(), identity, nil
	}

	target := int(math.Ceil(float64(n) * (1 - ratio)))
	if target < 3 {
		target = 3
	}
	if target > n {
		target = n
	}

	quadrics := make([]quadric, n)
	for _, face := range m.Faces {
		a := m.Features[face[0]].Position
		b := m.Features[face[1]].Position
		c := m.Features[face[2]].Position
		normal := b.Sub(a).Cross(c.Sub(a))
		norm := normal.Norm()
		if norm <= normalEpsilon {
			continue
		}
		normal = normal.Mul(1 / norm)
		d := -normal.Dot(a)
		for _, v := range face {
			quadrics[v].addPlane(normal.X, normal.Y, normal.Z, d)
		}
	}

	adjacency := make([]map[int]bool, n)
	for i := range adjacency {
		adjacency[i] = make(map[int]bool)
	}
	faces := make([][3]int, len(m.Faces))
	copy(faces, m.Faces)
	vertexFaces := make([]map[int]bool, n)
	for i := range vertexFaces {
		vertexFaces[i] = make(map[int]bool)
	}
	faceAlive := make([]bool, len(faces))
	for fi, face := range faces {
		faceAlive[fi] = true
		for e := 0; e < 3; e++ {
			u, v := face[e], face[(e+1)%3]
			adjacency[u][v] = true
			adjacency[v][u] = true
			vertexFaces[face[e]][fi] = true
		}
	}

	alive := make([]bool, n)
	versions := make([]int, n)
	aliveCount := 0
	for i := 0; i < n; i++ {
		if len(adjacency[i]) > 0 {
			alive[i] = true
			aliveCount++
		}
	}
	// A mesh of isolated vertices has nothing to collapse.
	if aliveCount == 0 {
		identity := make([]int, n)
		for i := range identity {
			identity[i] = i
		}
		return m.Clone(), identity, nil
	}

	collapseCost := func(from, to int) float64 {
		q := quadrics[from]
		q.add(&quadrics[to])
		p := m.Features[to].Position
		return q.evaluate(p.X, p.Y, p.Z)
	}

	queue := &collapseQueue{}
	for from := 0; from < n; from++ {
		if !alive[from] {
			continue
		}
		for to := range adjacency[from] {
			if to > from {
				// Both directions are pushed from the lower endpoint.
				heap.Push(queue, collapseCandidate{
					from: from, to: to, cost: collapseCost(from, to),
				})
				heap.Push(queue, collapseCandidate{
					from: to, to: from, cost: collapseCost(to, from),
				})
			}
		}
	}
	// Fix up versions on the initial candidates.
	for i := range *queue {
		(*queue)[i].fromVersion = versions[(*queue)[i].from]
		(*queue)[i].toVersion = versions[(*queue)[i].to]
	}
	heap.Init(queue)

	for aliveCount > target && queue.Len() > 0 {
		cand := heap.Pop(queue).(collapseCandidate)
		from, to := cand.from, cand.to
		if !alive[from] || !alive[to] {
			continue
		}
		if cand.fromVersion != versions[from] || cand.toVersion != versions[to] {
			continue
		}
		if !adjacency[from][to] {
			continue
		}

		quadrics[to].add(&quadrics[from])
		alive[from] = false
		aliveCount--
		versions[from]++
		versions[to]++

		for fi := range vertexFaces[from] {
			if !faceAlive[fi] {
				continue
			}
			face := &faces[fi]
			for e := 0; e < 3; e++ {
				if face[e] == from {
					face[e] = to
				}
			}
			if face[0] == face[1] || face[1] == face[2] || face[2] == face[0] {
				faceAlive[fi] = false
				for _, v := range face {
					delete(vertexFaces[v], fi)
				}
				continue
			}
			vertexFaces[to][fi] = true
		}
		vertexFaces[from] = nil

		for nb := range adjacency[from] {
			delete(adjacency[nb], from)
			if nb != to {
				adjacency[nb][to] = true
				adjacency[to][nb] = true
			}
		}
		adjacency[from] = nil
		delete(adjacency[to], to)

		for nb := range adjacency[to] {
			if !alive[nb] {
				continue
			}
			heap.Push(queue, collapseCandidate{
				from: to, to: nb, cost: collapseCost(to, nb),
				fromVersion: versions[to], toVersion: versions[nb],
			})
			heap.Push(queue, collapseCandidate{
				from: nb, to: to, cost: collapseCost(nb, to),
				fromVersion: versions[nb], toVersion: versions[to],
			})
		}
	}

	remap := make([]int, n)
	originalIndices := make([]int, 0, aliveCount)
	out := &Mesh{}
	for i := 0; i < n; i++ {
		if !alive[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(originalIndices)
		originalIndices = append(originalIndices, i)
		out.Features = append(out.Features, m.Features[i])
		out.Flags = append(out.Flags, m.Flags[i])
	}
	for fi, face := range faces {
		if !faceAlive[fi] {
			continue
		}
		mapped := [3]int{remap[face[0]], remap[face[1]], remap[face[2]]}
		if mapped[0] < 0 || mapped[1] < 0 || mapped[2] < 0 {
			continue
		}
		out.Faces = append(out.Faces, mapped)
	}
	out.RecomputeNormals()
	if err := out.Validate(); err != nil {
		return nil, nil, wrapDegenerate("decimation produced an invalid mesh: %v", err)
	}
	return out, originalIndices, nil
}
