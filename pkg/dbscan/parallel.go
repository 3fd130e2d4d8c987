package dbscan

import (
	"runtime"
	"sync"
)

// batchSize mirrors pkg/kmeans's fork-join sizing: one goroutine per
// large contiguous slice of the core-point range, rather than one per
// point, to amortize scheduling overhead (spec.md §5).
func batchSize() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n * 3000
}

// parallelFor runs fn(lo, hi) for consecutive [lo,hi) ranges covering
// [0,n) and waits for all to finish. Each worker writes only to its own
// partition of shared output slices.
func parallelFor(n int, fn func(lo, hi int)) {
	bs := batchSize()
	if n <= bs {
		fn(0, n)
		return
	}
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += bs {
		hi := lo + bs
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}
