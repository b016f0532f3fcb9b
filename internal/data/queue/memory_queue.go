package queue

import (
	"context"
	"errors"
	"io"
	"sync"

	"mixmirror/internal/core/ports"
	"mixmirror/internal/engine/graph"
)

var (
	_ ports.MutationSink   = (*MemoryQueue)(nil)
	_ ports.MutationSource = (*MemoryQueue)(nil)
)

// ErrClosed is returned by Send once the consumer side has gone away.
var ErrClosed = errors.New("mutation queue closed")

// MemoryQueue is an unbounded FIFO queue with many producers and one
// consumer. Send never waits for the consumer.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []graph.Mutation
	head   int
	closed bool
	// ready holds at most one token; it is signalled whenever items are
	// appended or the queue is closed.
	ready chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Send(m graph.Mutation) error {
	if m == nil {
		return errors.New("mutation must not be nil")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Receive blocks until a mutation is available. It returns io.EOF once the
// queue is closed and every buffered mutation has been handed out.
func (q *MemoryQueue) Receive(ctx context.Context) (graph.Mutation, error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			m := q.items[q.head]
			q.items[q.head] = nil
			q.head++
			q.compactLocked()
			q.mu.Unlock()
			return m, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, io.EOF
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// compactLocked reclaims the consumed prefix once it dominates the buffer.
func (q *MemoryQueue) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *MemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Close stops accepting new mutations. Buffered mutations stay receivable.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Closed() bool {
	if q == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
