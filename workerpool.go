package main

import "sync"

// WorkerPool runs submitted jobs on a fixed number of goroutines. Jobs
// are queued without blocking the submitter, so a caller can enqueue a
// whole batch before it starts reading results.
type WorkerPool struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

// NewWorkerPool starts size workers with room for queueDepth pending jobs.
func NewWorkerPool(size, queueDepth int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}

	wp := &WorkerPool{jobs: make(chan func(), queueDepth)}
	for i := 0; i < size; i++ {
		wp.wg.Add(1)
		go func() {
			defer wp.wg.Done()
			for job := range wp.jobs {
				job()
			}
		}()
	}
	return wp
}

// Submit enqueues a job. It blocks only when more than queueDepth jobs
// are pending.
func (wp *WorkerPool) Submit(job func()) {
	wp.jobs <- job
}

// Close stops accepting jobs. Queued jobs still run.
func (wp *WorkerPool) Close() {
	wp.once.Do(func() { close(wp.jobs) })
}

// Wait closes the pool and blocks until every queued job has finished.
func (wp *WorkerPool) Wait() {
	wp.Close()
	wp.wg.Wait()
}
