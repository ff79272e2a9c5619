// Package parallel distributes per-row field evaluation across CPU
// cores. Kernel cost varies sharply across the domain (texels near a
// wave crest iterate the full series, flat regions return early), so
// workers claim bands from a shared counter instead of splitting the
// canvas statically.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// job is one batch of tasks. Workers claim task indices from the
// shared counter until it runs past the end, so a slow band never
// pins the remaining ones to a single worker.
type job struct {
	tasks []func()
	next  atomic.Int64
	wg    sync.WaitGroup
}

// work claims and runs tasks until the batch is exhausted.
func (j *job) work() {
	for {
		i := int(j.next.Add(1)) - 1
		if i >= len(j.tasks) {
			return
		}
		j.tasks[i]()
		j.wg.Done()
	}
}

// Pool is a fixed set of worker goroutines that service one job at a
// time each. Submitting a job wakes idle workers; the submitter claims
// tasks alongside them.
//
// Pool is safe for concurrent use.
type Pool struct {
	workers int
	jobs    chan *job
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool starts a pool with the given worker count; 0 or negative
// selects GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		jobs:    make(chan *job, workers),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case j := <-p.jobs:
			j.work()
		}
	}
}

// Run executes every task and blocks until all of them finish. The
// calling goroutine claims tasks too, so Run completes even when the
// workers are saturated by other jobs. A closed pool runs nothing.
func (p *Pool) Run(tasks []func()) {
	if len(tasks) == 0 || !p.running.Load() {
		return
	}

	j := &job{tasks: tasks}
	j.wg.Add(len(tasks))

	// Wake up to workers-1 helpers; the caller covers the last share.
	// A worker that arrives after the counter is exhausted returns to
	// waiting immediately, so over-waking is harmless.
	wake := p.workers - 1
	if wake > len(tasks)-1 {
		wake = len(tasks) - 1
	}
	for i := 0; i < wake; i++ {
		select {
		case p.jobs <- j:
		default:
			// Queue full under concurrent Runs; the tasks still
			// complete through the claimants already attached.
		}
	}

	j.work()
	j.wg.Wait()
}

// Close stops accepting work and joins the workers. Jobs already
// claimed run to completion through their submitters. Safe to call
// more than once.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.workers }

// IsRunning reports whether the pool still accepts work.
func (p *Pool) IsRunning() bool { return p.running.Load() }
