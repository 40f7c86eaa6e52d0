// File: basp/message_queue.go
// Author: momentics <momentics@gmail.com>
//
// MessageQueue restores arrival order for messages deserialized out of order.

package basp

import (
	"slices"
	"sync"

	"github.com/momentics/hioload-basp/api"
)

type queuedMessage struct {
	id       uint64
	receiver api.Actor
	env      *api.Envelope
}

// MessageQueue hands messages to their receivers in id order. Ids come from
// NewID; every id must eventually be passed to Push or Drop.
type MessageQueue struct {
	mu         sync.Mutex
	nextID     uint64
	next       uint64
	pending    []queuedMessage
	delivering bool
	batch      []queuedMessage
}

// NewMessageQueue creates an empty queue.
func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// NewID reserves the next id.
func (q *MessageQueue) NewID() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextID
	q.nextID++
	return id
}

// Push completes id. A nil receiver completes it without delivery.
func (q *MessageQueue) Push(id uint64, receiver api.Actor, env *api.Envelope) {
	q.mu.Lock()
	if id < q.next {
		q.mu.Unlock()
		return
	}
	i, found := slices.BinarySearchFunc(q.pending, id, func(m queuedMessage, id uint64) int {
		switch {
		case m.id < id:
			return -1
		case m.id > id:
			return 1
		}
		return 0
	})
	if found {
		q.mu.Unlock()
		return
	}
	q.pending = slices.Insert(q.pending, i, queuedMessage{id: id, receiver: receiver, env: env})
	if q.delivering {
		// The delivering goroutine picks the entry up before it lets go.
		q.mu.Unlock()
		return
	}
	q.delivering = true
	for {
		n := 0
		for n < len(q.pending) && q.pending[n].id == q.next {
			q.next++
			n++
		}
		if n == 0 {
			q.delivering = false
			q.mu.Unlock()
			return
		}
		batch := append(q.batch[:0], q.pending[:n]...)
		q.pending = slices.Delete(q.pending, 0, n)
		q.mu.Unlock()
		for i := range batch {
			if batch[i].receiver != nil {
				batch[i].receiver.Enqueue(batch[i].env)
			}
			batch[i] = queuedMessage{}
		}
		q.mu.Lock()
		q.batch = batch[:0]
	}
}

// Drop completes id without delivering anything.
func (q *MessageQueue) Drop(id uint64) {
	q.Push(id, nil, nil)
}

// Pending returns the number of completed ids waiting for a lower one.
func (q *MessageQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// NextUndelivered returns the lowest id not yet completed in order.
func (q *MessageQueue) NextUndelivered() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.next
}
