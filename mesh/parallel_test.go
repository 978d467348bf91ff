package mesh

import (
	"sync/atomic"
	"testing"
)

func TestForEachBlock_CoversEveryIndex(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100, 1001} {
		visits := make([]int32, n)
		forEachBlock(n, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&visits[i], 1)
			}
		})
		for i, v := range visits {
			if v != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, v)
			}
		}
	}
}

func TestForEachBlock_BlocksAreContiguous(t *testing.T) {
	var total atomic.Int32
	forEachBlock(50, func(start, end int) {
		if start >= end {
			t.Errorf("empty block [%d,%d)", start, end)
		}
		total.Add(int32(end - start))
	})
	if total.Load() != 50 {
		t.Errorf("blocks covered %d indices, want 50", total.Load())
	}
}
