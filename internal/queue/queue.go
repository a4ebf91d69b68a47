// Package queue provides an unbounded FIFO whose consumer can block on a
// context. Producers never block, which keeps audio ingestion free of
// backpressure from slow transcription.
package queue

import (
	"context"
	"sync"
)

// Queue is a generic FIFO queue safe for concurrent use
type Queue[T any] struct {
	items  []T
	notify chan struct{} // Holds a token while items may be waiting
	mu     sync.Mutex
}

// New creates and returns a new Queue instance.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  []T{},
		notify: make(chan struct{}, 1),
	}
}

// Enqueue adds an element to the end of the queue. It never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the front element of the queue.
// The boolean indicates whether an element was dequeued (false if the queue was empty).
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Pop waits for the front element. It returns ctx.Err() if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if item, ok := q.Dequeue(); ok {
			return item, nil
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Clear drops every element and returns how many were dropped
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	q.items = []T{}
	return n
}
