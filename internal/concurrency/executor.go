// File: internal/concurrency/executor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines, using lock-free local
// queues and a global queue fallback. Idle workers park on a wake channel.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

const localQueueCapacity = 1024

// Executor manages a pool of worker goroutines.
type Executor struct {
	globalQueue chan TaskFunc
	localQueues []*LockFreeQueue[TaskFunc]
	wake        chan struct{}
	closeCh     chan struct{}
	mu          sync.RWMutex // excludes Submit while Close flips closed
	closed      bool
	wg          sync.WaitGroup
	log         *zap.Logger

	next           atomic.Uint64
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	panics         atomic.Int64
}

// NewExecutor starts numWorkers workers. If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int, log *zap.Logger) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if log == nil {
		log = zap.L()
	}
	e := &Executor{
		globalQueue: make(chan TaskFunc, numWorkers*4),
		localQueues: make([]*LockFreeQueue[TaskFunc], numWorkers),
		wake:        make(chan struct{}, numWorkers),
		closeCh:     make(chan struct{}),
		log:         log.Named("executor"),
	}
	for i := range e.localQueues {
		e.localQueues[i] = NewLockFreeQueue[TaskFunc](localQueueCapacity)
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run(i)
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if the
// executor is closed.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.totalTasks.Add(1)
	idx := int(e.next.Add(1) % uint64(len(e.localQueues)))
	if !e.localQueues[idx].Enqueue(task) {
		e.globalQueue <- task
	}
	e.signal()
	return nil
}

func (e *Executor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// NumWorkers returns the number of worker goroutines.
func (e *Executor) NumWorkers() int {
	return len(e.localQueues)
}

// Close stops accepting tasks, runs everything already queued and waits for
// workers to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.closeCh)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	done := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": done,
		"pending_tasks":   total - done,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.NumWorkers()),
	}
}

// run is the main loop of worker id.
func (e *Executor) run(id int) {
	defer e.wg.Done()
	for {
		for e.runAvailable(id) {
		}
		select {
		case task := <-e.globalQueue:
			e.execute(task)
		case <-e.wake:
		case <-e.closeCh:
			for e.runAvailable(id) {
			}
			return
		}
	}
}

// runAvailable executes one queued task, preferring the worker's own queue.
func (e *Executor) runAvailable(id int) bool {
	n := len(e.localQueues)
	for i := 0; i < n; i++ {
		if task, ok := e.localQueues[(id+i)%n].Dequeue(); ok {
			e.execute(task)
			return true
		}
	}
	select {
	case task := <-e.globalQueue:
		e.execute(task)
		return true
	default:
		return false
	}
}

// execute runs the task and updates statistics, recovering from panics.
func (e *Executor) execute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("task panicked", zap.Any("panic", r))
		}
		e.completedTasks.Add(1)
	}()
	task()
}
