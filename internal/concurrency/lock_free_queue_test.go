package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockFreeQueue_Bounded(t *testing.T) {
	q := NewLockFreeQueue[int](3)
	for i := 0; i < 4; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("enqueue %d failed below capacity", i)
		}
	}
	if q.Enqueue(4) {
		t.Fatal("enqueue succeeded on full queue")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		if !ok || v != i {
			t.Fatalf("dequeue = %d,%v want %d,true", v, ok, i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("dequeue succeeded on empty queue")
	}
}

func TestLockFreeQueue_MPMC(t *testing.T) {
	q := NewLockFreeQueue[int](1024)
	const producers, consumers, perProducer = 8, 8, 5000
	total := int64(producers * perProducer)

	var wg sync.WaitGroup
	var sent, received, count atomic.Int64
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				v := pid*perProducer + i + 1
				for !q.Enqueue(v) {
					runtime.Gosched()
				}
				sent.Add(int64(v))
			}
		}(p)
	}

	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for count.Load() < total {
				if v, ok := q.Dequeue(); ok {
					received.Add(int64(v))
					count.Add(1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		cwg.Wait()
		close(done)
	}()
	select {
	case <-done:
		if sent.Load() != received.Load() {
			t.Errorf("checksum mismatch: sent %d, received %d", sent.Load(), received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Errorf("timeout: received %d/%d", count.Load(), total)
	}
}
