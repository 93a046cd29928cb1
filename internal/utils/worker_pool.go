package utils

import (
	"runtime/debug"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// WorkerPool runs submitted functions on a fixed set of goroutines. It is
// shared by every live session so that the number of concurrent calls to a
// slow collaborator stays bounded no matter how many sessions are open.
type WorkerPool struct {
	name      string
	workers   int
	workQueue chan func()
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
	logger    hclog.Logger
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// The work queue is buffered at 2x the worker count.
func NewWorkerPool(name string, workers int, logger hclog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &WorkerPool{
		name:      name,
		workers:   workers,
		workQueue: make(chan func(), workers*2),
		stopCh:    make(chan struct{}),
		logger:    logger.Named(name + "-pool"),
	}
}

// Start begins processing work items. Calling it twice has no effect.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}

	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
	wp.logger.Debug("worker pool started", "workers", wp.workers)
}

// Stop stops the worker pool and waits for in-progress work to return.
// Queued work that has not started is discarded.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return
	}

	wp.running = false
	close(wp.stopCh)
	wp.wg.Wait()
}

// Submit adds a work item to the queue.
// Returns true if the work was queued, false if the queue is full or the
// pool is not running. Never blocks.
func (wp *WorkerPool) Submit(work func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.workQueue <- work:
		return true
	default:
		return false
	}
}

// QueueDepth returns the number of queued, not yet started items.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.workQueue)
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case work := <-wp.workQueue:
			wp.run(work)
		case <-wp.stopCh:
			return
		}
	}
}

func (wp *WorkerPool) run(work func()) {
	if work == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("panic in pooled work", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	work()
}
