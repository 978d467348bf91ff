package mesh

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Spatial indexes for nearest-neighbor queries. Two distinct indexes are
// exposed: FeatureIndex over 6-D feature vectors (position + normal, used by
// correspondence search) and PositionIndex over 3-D positions (used by the
// visco-elastic smoothing neighborhoods). Both are static kd-trees and must
// be rebuilt after any mutation of the indexed data.
//
// All reported distances are squared Euclidean distances.

// featurePoint is a 6-D point with its row index in the source array.
type featurePoint struct {
	vec   [6]float64
	index int
}

func (p featurePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.vec[d] - c.(featurePoint).vec[d]
}

func (p featurePoint) Dims() int { return 6 }

func (p featurePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(featurePoint)
	var sum float64
	for i := range p.vec {
		d := p.vec[i] - q.vec[i]
		sum += d * d
	}
	return sum
}

type featureSet []featurePoint

func (s featureSet) Index(i int) kdtree.Comparable { return s[i] }
func (s featureSet) Len() int                      { return len(s) }
func (s featureSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}
func (s featureSet) Pivot(d kdtree.Dim) int {
	return featurePlane{featureSet: s, Dim: d}.Pivot()
}

// featurePlane implements kdtree.SortSlicer for pivot selection.
type featurePlane struct {
	featureSet
	kdtree.Dim
}

func (p featurePlane) Less(i, j int) bool {
	return p.featureSet[i].vec[p.Dim] < p.featureSet[j].vec[p.Dim]
}
func (p featurePlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
func (p featurePlane) Slice(start, end int) kdtree.SortSlicer {
	p.featureSet = p.featureSet[start:end]
	return p
}
func (p featurePlane) Swap(i, j int) {
	p.featureSet[i], p.featureSet[j] = p.featureSet[j], p.featureSet[i]
}

// FeatureIndex is a static kd-tree over 6-D feature vectors.
type FeatureIndex struct {
	tree *kdtree.Tree
	size int
}

// NewFeatureIndex builds an index over the given features.
func NewFeatureIndex(features []Feature) (*FeatureIndex, error) {
	if len(features) == 0 {
		return nil, wrapIndexBuild("no points to index")
	}
	if err := checkFiniteFeatures(features); err != nil {
		return nil, wrapIndexBuild("non-finite input")
	}
	pts := make(featureSet, len(features))
	for i, f := range features {
		pts[i] = featurePoint{vec: f.Vec6(), index: i}
	}
	return &FeatureIndex{tree: kdtree.New(pts, false), size: len(pts)}, nil
}

// Size returns the number of indexed points.
func (x *FeatureIndex) Size() int { return x.size }

// KNN returns the indices and squared distances of the k nearest indexed
// points to q, ascending by distance. Pass the query's own row index as
// exclude when querying the indexed set against itself (-1 otherwise); the
// query point is then never its own neighbor. If k exceeds the number of
// available points, all available points are returned.
func (x *FeatureIndex) KNN(q Feature, k int, exclude int) ([]int, []float64) {
	want := k
	if exclude >= 0 {
		want++
	}
	if want > x.size {
		want = x.size
	}
	if want <= 0 {
		return nil, nil
	}
	keeper := kdtree.NewNKeeper(want)
	x.tree.NearestSet(keeper, featurePoint{vec: q.Vec6(), index: -1})
	return collectNeighbors(keeper.Heap, k, exclude)
}

// Radius returns all indexed points within squared distance sqRadius of q,
// in no particular order.
func (x *FeatureIndex) Radius(q Feature, sqRadius float64, exclude int) ([]int, []float64) {
	keeper := kdtree.NewDistKeeper(sqRadius)
	x.tree.NearestSet(keeper, featurePoint{vec: q.Vec6(), index: -1})
	return collectNeighbors(keeper.Heap, len(keeper.Heap), exclude)
}

// positionPoint is a 3-D point with its row index in the source array.
type positionPoint struct {
	vec   r3.Vector
	index int
}

func (p positionPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(positionPoint)
	switch d {
	case 0:
		return p.vec.X - q.vec.X
	case 1:
		return p.vec.Y - q.vec.Y
	default:
		return p.vec.Z - q.vec.Z
	}
}

func (p positionPoint) Dims() int { return 3 }

func (p positionPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(positionPoint)
	d := p.vec.Sub(q.vec)
	return d.Dot(d)
}

type positionSet []positionPoint

func (s positionSet) Index(i int) kdtree.Comparable { return s[i] }
func (s positionSet) Len() int                      { return len(s) }
func (s positionSet) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}
func (s positionSet) Pivot(d kdtree.Dim) int {
	return positionPlane{positionSet: s, Dim: d}.Pivot()
}

type positionPlane struct {
	positionSet
	kdtree.Dim
}

func (p positionPlane) Less(i, j int) bool {
	a, b := p.positionSet[i], p.positionSet[j]
	switch p.Dim {
	case 0:
		return a.vec.X < b.vec.X
	case 1:
		return a.vec.Y < b.vec.Y
	default:
		return a.vec.Z < b.vec.Z
	}
}
func (p positionPlane) Pivot() int {
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
func (p positionPlane) Slice(start, end int) kdtree.SortSlicer {
	p.positionSet = p.positionSet[start:end]
	return p
}
func (p positionPlane) Swap(i, j int) {
	p.positionSet[i], p.positionSet[j] = p.positionSet[j], p.positionSet[i]
}

// PositionIndex is a static kd-tree over 3-D vertex positions.
type PositionIndex struct {
	tree *kdtree.Tree
	size int
}

// NewPositionIndex builds an index over the given positions.
func NewPositionIndex(positions []r3.Vector) (*PositionIndex, error) {
	if len(positions) == 0 {
		return nil, wrapIndexBuild("no points to index")
	}
	pts := make(positionSet, len(positions))
	for i, p := range positions {
		if !finiteVec(p) {
			return nil, wrapIndexBuild("non-finite input")
		}
		pts[i] = positionPoint{vec: p, index: i}
	}
	return &PositionIndex{tree: kdtree.New(pts, false), size: len(pts)}, nil
}

// Size returns the number of indexed points.
func (x *PositionIndex) Size() int { return x.size }

// KNN behaves like FeatureIndex.KNN over 3-D positions.
func (x *PositionIndex) KNN(q r3.Vector, k int, exclude int) ([]int, []float64) {
	want := k
	if exclude >= 0 {
		want++
	}
	if want > x.size {
		want = x.size
	}
	if want <= 0 {
		return nil, nil
	}
	keeper := kdtree.NewNKeeper(want)
	x.tree.NearestSet(keeper, positionPoint{vec: q, index: -1})
	return collectNeighbors(keeper.Heap, k, exclude)
}

// Radius behaves like FeatureIndex.Radius over 3-D positions.
func (x *PositionIndex) Radius(q r3.Vector, sqRadius float64, exclude int) ([]int, []float64) {
	keeper := kdtree.NewDistKeeper(sqRadius)
	x.tree.NearestSet(keeper, positionPoint{vec: q, index: -1})
	return collectNeighbors(keeper.Heap, len(keeper.Heap), exclude)
}

type neighbor struct {
	index  int
	sqDist float64
}

// collectNeighbors drains a keeper heap into parallel index/distance slices,
// dropping the keeper's sentinel entry and the excluded index, sorted
// ascending by distance and trimmed to at most k entries.
func collectNeighbors(heap []kdtree.ComparableDist, k int, exclude int) ([]int, []float64) {
	found := make([]neighbor, 0, len(heap))
	for _, cd := range heap {
		if cd.Comparable == nil {
			continue
		}
		var idx int
		switch p := cd.Comparable.(type) {
		case featurePoint:
			idx = p.index
		case positionPoint:
			idx = p.index
		}
		if idx == exclude {
			continue
		}
		found = append(found, neighbor{index: idx, sqDist: cd.Dist})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].sqDist != found[j].sqDist {
			return found[i].sqDist < found[j].sqDist
		}
		return found[i].index < found[j].index
	})
	if len(found) > k {
		found = found[:k]
	}
	indices := make([]int, len(found))
	sqDists := make([]float64, len(found))
	for i, n := range found {
		indices[i] = n.index
		sqDists[i] = n.sqDist
	}
	return indices, sqDists
}

func wrapIndexBuild(msg string) error {
	return wrapWith(ErrIndexBuild, msg)
}
