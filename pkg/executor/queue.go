// Package executor serializes continuation invocations onto one designated
// goroutine. Producers enqueue from any goroutine; only the owner drains.
package executor

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

const logPrefix = "executor:queue"

// Invocation is a deferred continuation call with its result already bound.
type Invocation func()

// Queue is an unbounded FIFO of invocations.
type Queue struct {
	mu      sync.Mutex
	pending []Invocation
	spare   []Invocation
	closed  bool
	signal  chan struct{} // buffered, size 1
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pending: make([]Invocation, 0, 32),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue appends an invocation. Safe from any goroutine. Returns false once
// the queue is closed.
func (q *Queue) Enqueue(inv Invocation) bool {
	if inv == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pending = append(q.pending, inv)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain runs every invocation queued at the time of the call, in FIFO order,
// and returns how many ran. Work enqueued by those invocations waits for the
// next Drain. Must only be called from the designated goroutine.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = q.spare[:0]
	q.spare = nil
	q.mu.Unlock()

	for i, inv := range batch {
		batch[i] = nil
		q.invoke(inv)
	}

	q.mu.Lock()
	if q.spare == nil {
		q.spare = batch[:0]
	}
	q.mu.Unlock()

	return len(batch)
}

func (q *Queue) invoke(inv Invocation) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - invocation panicked: %v\n%s", logPrefix, r, debug.Stack()))
		}
	}()
	inv()
}

// Len returns the number of queued invocations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear drops queued invocations without running them.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.pending)
	for i := range q.pending {
		q.pending[i] = nil
	}
	q.pending = q.pending[:0]
	return n
}

// Close stops accepting new invocations. Already queued work can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Signal fires after an enqueue. Multiple enqueues may coalesce into one signal.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}
