// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer scheduler: a heap of deadlines served by one goroutine.

package concurrency

import (
	"container/heap"
	"sync"
	"time"
)

type timerTask struct {
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

type taskHeap []*timerTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler runs callbacks after a delay. Callbacks run on the scheduler
// goroutine and must not block.
type Scheduler struct {
	mu     sync.Mutex
	timerQ taskHeap
	seq    uint64
	closed bool
	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler starts a scheduler goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Now returns the current time.
func (s *Scheduler) Now() time.Time { return time.Now() }

// Schedule runs fn once after delay. The returned function cancels fn and
// reports whether it was still pending.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) func() bool {
	t := &timerTask{at: time.Now().Add(delay), fn: fn, index: -1}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() bool { return false }
	}
	s.seq++
	t.seq = s.seq
	heap.Push(&s.timerQ, t)
	first := t.index == 0
	s.mu.Unlock()
	if first {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.index < 0 {
			return false
		}
		heap.Remove(&s.timerQ, t.index)
		return true
	}
}

// Len returns the number of pending callbacks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerQ.Len()
}

// Close drops pending callbacks and stops the scheduler goroutine.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	for s.timerQ.Len() > 0 {
		heap.Pop(&s.timerQ)
	}
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.stop:
				return
			}
			continue
		}
		next := s.timerQ[0]
		wait := time.Until(next.at)
		if wait <= 0 {
			heap.Pop(&s.timerQ)
			s.mu.Unlock()
			next.fn()
			continue
		}
		s.mu.Unlock()
		timer.Reset(wait)
		select {
		case <-timer.C:
		case <-s.notify:
			timer.Stop()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}
