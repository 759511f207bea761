package jobs

import "sync"

// Queue is an unbounded FIFO job queue. Producers (HTTP handlers) never
// block on enqueue; the single worker blocks on Dequeue until work
// arrives or the queue is closed.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Payload
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a job. Enqueue on a closed queue is a no-op; jobs
// submitted during shutdown are deliberately dropped.
func (q *Queue) Enqueue(p Payload) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, p)
	q.cond.Signal()
}

// Dequeue blocks until a job is available or the queue is closed. The
// second return value is false only when the queue is closed and
// drained.
func (q *Queue) Dequeue() (Payload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// Close wakes all blocked consumers. Jobs already queued remain
// dequeueable so the worker can drain before exiting.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
