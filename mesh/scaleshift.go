package mesh

import (
	"sort"
)

// ScaleShiftMesh transfers the deformation carried by a coarse pyramid level
// onto the next, finer level. Both levels are decimations of the same
// original mesh, identified by their original-index mappings. Every next
// vertex receives the displacement (deformed minus original position) of the
// previous-level vertex with the same original index, or, when that vertex
// did not survive the coarser decimation, of the one with the nearest
// original index (ties resolve to the lower index). Displacements rather
// than positions are transferred, so detail present only at the finer level
// is preserved. Normals are recomputed afterwards.
//
// next must hold the original (undeformed) positions on entry, as produced
// by decimating the original mesh.
func ScaleShiftMesh(original, previous *Mesh, previousIndices []int, next *Mesh, nextIndices []int) error {
	if err := original.Validate(); err != nil {
		return err
	}
	if err := previous.Validate(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if len(previousIndices) != previous.NumVertices() {
		return wrapInvalidInput("previous index mapping has %d entries for %d vertices",
			len(previousIndices), previous.NumVertices())
	}
	if len(nextIndices) != next.NumVertices() {
		return wrapInvalidInput("next index mapping has %d entries for %d vertices",
			len(nextIndices), next.NumVertices())
	}
	n := original.NumVertices()
	for _, set := range [][]int{previousIndices, nextIndices} {
		for i, idx := range set {
			if idx < 0 || idx >= n {
				return wrapInvalidInput("original index %d out of range (%d original vertices)", idx, n)
			}
			if i > 0 && set[i] <= set[i-1] {
				return wrapInvalidInput("original index mapping is not strictly ascending at entry %d", i)
			}
		}
	}

	for i := range next.Features {
		j := nearestOriginalIndex(previousIndices, nextIndices[i])
		displacement := previous.Features[j].Position.Sub(original.Features[previousIndices[j]].Position)
		next.Features[i].Position = next.Features[i].Position.Add(displacement)
	}
	next.RecomputeNormals()
	return checkFiniteFeatures(next.Features)
}

// nearestOriginalIndex returns the position in the ascending slice indices
// whose value is closest to want, preferring the lower value on ties.
func nearestOriginalIndex(indices []int, want int) int {
	pos := sort.SearchInts(indices, want)
	if pos == len(indices) {
		return len(indices) - 1
	}
	if indices[pos] == want || pos == 0 {
		return pos
	}
	if want-indices[pos-1] <= indices[pos]-want {
		return pos - 1
	}
	return pos
}
