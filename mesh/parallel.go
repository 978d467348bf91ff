package mesh

import (
	"runtime"
	"sync"
)

// forEachBlock runs fn over contiguous index blocks [start,end) covering
// [0,n), fanning the blocks out over the available CPUs. Each invocation may
// only write rows inside its own block, which keeps per-row outputs
// deterministic. Reductions must be computed per block and combined in block
// order by the caller.
func forEachBlock(n int, fn func(start, end int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	blockSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += blockSize {
		end := start + blockSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
