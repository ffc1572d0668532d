package engine

import (
	"context"
	"sync"
)

// action is one unit of work for the conductor loop.
type action struct {
	name string
	fn   func(ctx context.Context) error

	// done receives the action's result, if non-nil. Buffered, size 1.
	done chan error
}

// actionQueue is a thread-safe FIFO queue of actions.
//
// The queue is unbounded so that device events, timer callbacks and API
// calls can always enqueue without blocking, whatever the loop is doing.
// Only the conductor's Run loop dequeues, which is what makes actions
// strictly sequential.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type actionQueue struct {
	mu      sync.Mutex
	actions []action
	closed  bool
	signal  chan struct{} // Signals action availability (buffered, size 1)
}

func newActionQueue() *actionQueue {
	return &actionQueue{
		actions: make([]action, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds an action to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *actionQueue) Enqueue(a action) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.actions = append(q.actions, a)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front action without blocking.
func (q *actionQueue) TryDequeue() (action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return action{}, false
	}

	a := q.actions[0]

	// Drop the slot's references so finished closures can be collected.
	q.actions[0] = action{}

	if len(q.actions) == 1 {
		q.actions = q.actions[:0]
	} else {
		q.actions = q.actions[1:]
	}

	return a, true
}

// Wait returns a channel that signals when actions may be available. The
// channel is closed when the queue is closed.
func (q *actionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *actionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Close stops accepting actions and wakes the loop. Actions already queued
// are drained by the caller.
func (q *actionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close was called.
func (q *actionQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns every queued action.
func (q *actionQueue) Drain() []action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.actions
	q.actions = nil
	return out
}
