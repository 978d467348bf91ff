package mesh

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
)

func gridFeatures(n int) []Feature {
	features := make([]Feature, n)
	for i := range features {
		features[i] = Feature{
			Position: r3.Vector{X: float64(i)},
			Normal:   r3.Vector{Z: 1},
		}
	}
	return features
}

func TestFeatureIndex_KNNOrdering(t *testing.T) {
	features := gridFeatures(10)
	index, err := NewFeatureIndex(features)
	if err != nil {
		t.Fatalf("NewFeatureIndex: %v", err)
	}

	query := Feature{Position: r3.Vector{X: 3.1}, Normal: r3.Vector{Z: 1}}
	indices, sqDists := index.KNN(query, 3, -1)
	if len(indices) != 3 {
		t.Fatalf("got %d neighbors, want 3", len(indices))
	}
	if indices[0] != 3 {
		t.Errorf("nearest neighbor = %d, want 3", indices[0])
	}
	for i := 1; i < len(sqDists); i++ {
		if sqDists[i] < sqDists[i-1] {
			t.Errorf("distances not ascending: %v", sqDists)
		}
	}
	if !almostEqual(sqDists[0], 0.1*0.1, 1e-12) {
		t.Errorf("nearest squared distance = %g, want %g", sqDists[0], 0.1*0.1)
	}
}

func TestFeatureIndex_ExcludeSelf(t *testing.T) {
	features := gridFeatures(5)
	index, err := NewFeatureIndex(features)
	if err != nil {
		t.Fatalf("NewFeatureIndex: %v", err)
	}

	indices, _ := index.KNN(features[2], 2, 2)
	for _, idx := range indices {
		if idx == 2 {
			t.Fatalf("query returned its own index: %v", indices)
		}
	}
	if len(indices) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(indices))
	}
}

func TestFeatureIndex_KLargerThanSet(t *testing.T) {
	features := gridFeatures(4)
	index, err := NewFeatureIndex(features)
	if err != nil {
		t.Fatalf("NewFeatureIndex: %v", err)
	}

	indices, _ := index.KNN(features[0], 10, -1)
	if len(indices) != 4 {
		t.Fatalf("got %d neighbors, want all 4", len(indices))
	}
}

func TestFeatureIndex_Radius(t *testing.T) {
	features := gridFeatures(10)
	index, err := NewFeatureIndex(features)
	if err != nil {
		t.Fatalf("NewFeatureIndex: %v", err)
	}

	query := Feature{Position: r3.Vector{X: 5}, Normal: r3.Vector{Z: 1}}
	indices, _ := index.Radius(query, 1.5*1.5, -1)
	want := map[int]bool{4: true, 5: true, 6: true}
	if len(indices) != len(want) {
		t.Fatalf("got %d neighbors %v, want 3", len(indices), indices)
	}
	for _, idx := range indices {
		if !want[idx] {
			t.Errorf("unexpected neighbor %d", idx)
		}
	}
}

func TestNewFeatureIndex_Errors(t *testing.T) {
	if _, err := NewFeatureIndex(nil); !errors.Is(err, ErrIndexBuild) {
		t.Errorf("empty input: err = %v, want ErrIndexBuild", err)
	}

	bad := gridFeatures(3)
	bad[1].Position.X = math.NaN()
	if _, err := NewFeatureIndex(bad); !errors.Is(err, ErrIndexBuild) {
		t.Errorf("non-finite input: err = %v, want ErrIndexBuild", err)
	}
}

func TestPositionIndex_KNN(t *testing.T) {
	positions := []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 10}}
	index, err := NewPositionIndex(positions)
	if err != nil {
		t.Fatalf("NewPositionIndex: %v", err)
	}

	indices, sqDists := index.KNN(r3.Vector{X: 1.2}, 2, -1)
	if len(indices) != 2 || indices[0] != 1 || indices[1] != 2 {
		t.Fatalf("neighbors = %v, want [1 2]", indices)
	}
	if !almostEqual(sqDists[0], 0.04, 1e-12) {
		t.Errorf("nearest squared distance = %g, want 0.04", sqDists[0])
	}
}
