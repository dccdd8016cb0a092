package pool

import "sync"

// message is the unit carried on the job queue. A message with a nil job is
// the terminate sentinel: the worker that dequeues it stops.
type message struct {
	job Job
}

// terminate is the sentinel telling exactly one worker to exit.
var terminate = message{}

// queue is an unbounded FIFO shared by every worker of a pool. The lock is
// held for a single enqueue or dequeue only, never while a job runs.
type queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []message
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends m and wakes one waiting worker.
func (q *queue) push(m message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a message is available and removes it from the head.
func (q *queue) pop() message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	m := q.items[0]
	q.items[0] = message{}
	q.items = q.items[1:]
	return m
}

// len returns the number of queued messages, sentinels included.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
