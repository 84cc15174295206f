package worker

import (
	"errors"
	"sync"
)

// WorkerPool contains a fixed set of workers which are started
// together. The pool's WaitGroup is controlled automatically,
// and can be waited on via Wait once the pool has been started.
type WorkerPool struct {
	workers []Worker
	wg      sync.WaitGroup
	started bool
}

// NewWorkerPool creates a new WorkerPool struct
// and initialises the 'workers' slice.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0)}
}

// Start cycles through all the workers
// currently inside the WorkerPool and creates
// a goroutine for each. The 'Start' method of
// each worker is executed concurrently.
//
// Start does NOT block, consumers should use Wait if
// they wish to block until all workers have finished.
func (pool *WorkerPool) Start() error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.wg.Add(1)
		go func(w Worker) {
			defer pool.wg.Done()
			w.Start()
		}(worker)
	}

	return nil
}

// PushWorker inserts the workers provided in to the worker pool. Workers
// cannot be added once the pool is started.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// Wait blocks until every worker in the pool has finished. Calling
// Wait on a pool which has not been started returns immediately.
func (pool *WorkerPool) Wait() {
	if !pool.started {
		return
	}

	pool.wg.Wait()
}

// Size returns the number of workers attached to this pool.
func (pool *WorkerPool) Size() int {
	return len(pool.workers)
}
