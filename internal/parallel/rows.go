package parallel

import "sync"

var (
	sharedOnce sync.Once
	sharedPool *Pool
)

func shared() *Pool {
	sharedOnce.Do(func() {
		sharedPool = NewPool(0)
	})
	return sharedPool
}

// Rows splits n rows into bands and evaluates fn(lo, hi) for each band
// on the shared pool, blocking until every band completes. Bands are
// finer than the worker count so the claim counter can rebalance
// uneven kernel cost. fn must be safe to call concurrently on
// disjoint ranges.
func Rows(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	p := shared()
	bands := p.Workers() * 4
	if bands > n {
		bands = n
	}
	if bands <= 1 {
		fn(0, n)
		return
	}

	size := (n + bands - 1) / bands
	tasks := make([]func(), 0, bands)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, lo+size
		if hi > n {
			hi = n
		}
		tasks = append(tasks, func() { fn(lo, hi) })
	}
	p.Run(tasks)
}
