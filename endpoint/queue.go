// File: endpoint/queue.go
// Author: momentics <momentics@gmail.com>
//
// Deficit round-robin queue over two classes: events and messages.
// FIFO within a class; no order across classes.

package endpoint

import (
	"sync"

	"github.com/eapache/queue"
)

const (
	eventClass = iota
	messageClass
	numClasses
)

// DefaultQuantum is the deficit granted to a class per round.
const DefaultQuantum = 1500

type drrClass struct {
	items   *queue.Queue
	deficit int
}

// Queue feeds one peer connection. Producers are arbitrary threads; the
// consumer is the reactor thread.
type Queue struct {
	mu      sync.Mutex
	classes [numClasses]drrClass
	cur     int
	quantum int
	blocked bool
}

// NewQueue creates a blocked, empty queue. The first Push unblocks it.
func NewQueue(quantum int) *Queue {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	q := &Queue{quantum: quantum, blocked: true}
	for i := range q.classes {
		q.classes[i].items = queue.New()
	}
	q.classes[q.cur].deficit = quantum
	return q
}

func classOf(el Element) int {
	if _, ok := el.(Event); ok {
		return eventClass
	}
	return messageClass
}

// Push appends el to its class. It returns true if the queue was blocked,
// in which case the caller must wake the consumer.
func (q *Queue) Push(el Element) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.classes[classOf(el)].items.Add(el)
	if q.blocked {
		q.blocked = false
		return true
	}
	return false
}

// Next removes the next element according to the deficit round-robin
// schedule, or returns nil if both classes are empty.
func (q *Queue) Next() Element {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		c := &q.classes[q.cur]
		other := &q.classes[(q.cur+1)%numClasses]
		if c.items.Length() == 0 {
			c.deficit = 0
			if other.items.Length() == 0 {
				return nil
			}
			q.advance()
			continue
		}
		head := c.items.Peek().(Element)
		cost := head.TaskSize()
		if cost > c.deficit && other.items.Length() > 0 {
			q.advance()
			continue
		}
		c.items.Remove()
		c.deficit = max(0, c.deficit-cost)
		if c.items.Length() == 0 {
			c.deficit = 0
		}
		return head
	}
}

func (q *Queue) advance() {
	q.cur = (q.cur + 1) % numClasses
	q.classes[q.cur].deficit += q.quantum
}

// Empty reports whether both classes are empty.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emptyLocked()
}

func (q *Queue) emptyLocked() bool {
	for i := range q.classes {
		if q.classes[i].items.Length() > 0 {
			return false
		}
	}
	return true
}

// TryBlock marks an empty queue as blocked and reports success.
func (q *Queue) TryBlock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.blocked {
		return true
	}
	if !q.emptyLocked() {
		return false
	}
	q.blocked = true
	return true
}

// Blocked reports whether the consumer is parked.
func (q *Queue) Blocked() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blocked
}

// Len returns the number of queued events and messages.
func (q *Queue) Len() (events, messages int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.classes[eventClass].items.Length(), q.classes[messageClass].items.Length()
}
