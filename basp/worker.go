// File: basp/worker.go
// Author: momentics <momentics@gmail.com>
//
// Worker and WorkerHub: a fixed set of reusable deserialization tasks. An
// exhausted hub makes the caller deliver inline instead of queueing.

package basp

import (
	"sync"

	"github.com/momentics/hioload-basp/api"
)

// Worker deserializes one actor message per launch.
type Worker struct {
	hub *WorkerHub
	ctx *deliveryContext

	id      uint64
	lastHop api.NodeID
	hdr     Header
	payload []byte
}

// Launch copies the frame, reserves its queue id and submits the worker.
// Reactor thread only.
func (w *Worker) Launch(lastHop api.NodeID, hdr Header, payload []byte) {
	w.id = w.ctx.queue.NewID()
	w.lastHop = lastHop
	w.hdr = hdr
	w.payload = append(w.payload[:0], payload...)
	if err := w.hub.exec.Submit(w.run); err != nil {
		w.run()
	}
}

func (w *Worker) run() {
	w.ctx.deliver(w.id, w.lastHop, w.hdr, w.payload)
	w.hub.Push(w)
}

// WorkerHub owns the idle workers of one connection.
type WorkerHub struct {
	exec api.Executor
	idle chan *Worker
	size int

	mu   sync.Mutex
	cond *sync.Cond
	busy int
}

func newWorkerHub(n int, exec api.Executor, ctx *deliveryContext) *WorkerHub {
	if n < 0 {
		n = 0
	}
	h := &WorkerHub{exec: exec, idle: make(chan *Worker, n), size: n}
	h.cond = sync.NewCond(&h.mu)
	for i := 0; i < n; i++ {
		h.idle <- &Worker{hub: h, ctx: ctx}
	}
	return h
}

// Pop leases an idle worker or returns nil if all are busy.
// The busy count and the idle channel change together under mu.
func (h *WorkerHub) Pop() *Worker {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case w := <-h.idle:
		h.busy++
		return w
	default:
		return nil
	}
}

// Push returns a leased worker. The idle channel holds every worker, so the
// send never blocks.
func (h *WorkerHub) Push(w *Worker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.idle <- w
	h.busy--
	if h.busy == 0 {
		h.cond.Broadcast()
	}
}

// Size returns the number of workers.
func (h *WorkerHub) Size() int { return h.size }

// Idle returns the number of workers available for Pop.
func (h *WorkerHub) Idle() int { return len(h.idle) }

// AwaitIdle blocks until every leased worker has been returned.
func (h *WorkerHub) AwaitIdle() {
	h.mu.Lock()
	for h.busy > 0 {
		h.cond.Wait()
	}
	h.mu.Unlock()
}
