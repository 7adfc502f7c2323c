package session

import (
	"context"
	"sync"
)

type queueItem struct {
	data  []byte
	close bool
}

// fragmentQueue is an unbounded FIFO. push never blocks; once the close
// sentinel has been pushed, later pushes are dropped.
type fragmentQueue struct {
	mu     sync.Mutex
	items  []queueItem
	closed bool
	signal chan struct{}
}

func newFragmentQueue() *fragmentQueue {
	return &fragmentQueue{signal: make(chan struct{}, 1)}
}

func (q *fragmentQueue) push(data []byte) bool {
	return q.put(queueItem{data: data})
}

// close enqueues the sentinel. It reports whether this call closed the queue.
func (q *fragmentQueue) close() bool {
	return q.put(queueItem{close: true})
}

func (q *fragmentQueue) put(item queueItem) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	if item.close {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an item is available or ctx is done.
func (q *fragmentQueue) pop(ctx context.Context) (queueItem, bool) {
	for {
		if ctx.Err() != nil {
			return queueItem{}, false
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = queueItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return queueItem{}, false
		}
	}
}

// shutdown refuses further pushes and discards anything still queued. It
// returns the number of fragments dropped.
func (q *fragmentQueue) shutdown() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	dropped := 0
	for _, item := range q.items {
		if !item.close {
			dropped++
		}
	}
	q.items = nil
	return dropped
}

func (q *fragmentQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
