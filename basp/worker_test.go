package basp

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestWorkerHubLeaseAccounting(t *testing.T) {
	const size = 4
	h := newWorkerHub(size, nil, nil)

	var stop atomic.Bool
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for !stop.Load() {
			h.mu.Lock()
			busy, idle := h.busy, len(h.idle)
			h.mu.Unlock()
			if busy+idle != size {
				t.Errorf("busy %d + idle %d != %d", busy, idle, size)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				if w := h.Pop(); w != nil {
					h.Push(w)
				}
			}
		}()
	}
	wg.Wait()
	stop.Store(true)
	checker.Wait()

	h.AwaitIdle()
	if h.Idle() != size {
		t.Fatalf("%d idle workers after AwaitIdle", h.Idle())
	}
}

func TestWorkerHubExhausted(t *testing.T) {
	h := newWorkerHub(2, nil, nil)
	a, b := h.Pop(), h.Pop()
	if a == nil || b == nil {
		t.Fatal("expected two workers")
	}
	if h.Pop() != nil {
		t.Fatal("exhausted hub must return nil")
	}
	done := make(chan struct{})
	go func() {
		h.AwaitIdle()
		close(done)
	}()
	h.Push(a)
	select {
	case <-done:
		t.Fatal("AwaitIdle returned with a worker still leased")
	default:
	}
	h.Push(b)
	<-done
	if h.Idle() != 2 {
		t.Fatalf("%d idle", h.Idle())
	}
}
