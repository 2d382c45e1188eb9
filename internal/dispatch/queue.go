package dispatch

import (
	"container/heap"
	"errors"
	"sync"

	commands "shuttle-gateway/internal/commands/domain"
	"shuttle-gateway/internal/observability/metrics"
)

// ErrQueueFull is returned when the bounded queue cannot take more work.
var ErrQueueFull = errors.New("dispatch: queue full")

// ErrQueueClosed is returned from Pop after Close drains the queue.
var ErrQueueClosed = errors.New("dispatch: queue closed")

// Item is one unit of shuttle work. Lower Priority runs first; ties break
// by arrival order.
type Item struct {
	Command  commands.Command
	Priority int
	seq      uint64
}

// Queue is a bounded priority queue safe for concurrent producers and
// consumers. Pop blocks until an item arrives or the queue closes.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    itemHeap
	capacity int
	nextSeq  uint64
	closed   bool
}

// NewQueue builds a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	q := &Queue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a command. It fails fast with ErrQueueFull instead of
// blocking the poll loop.
func (q *Queue) Push(cmd commands.Command, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.items.Len() >= q.capacity {
		return ErrQueueFull
	}
	q.nextSeq++
	heap.Push(&q.items, Item{Command: cmd, Priority: priority, seq: q.nextSeq})
	metrics.SetQueueSize(q.items.Len())
	q.notEmpty.Signal()
	return nil
}

// Pop dequeues the highest-priority item, blocking while the queue is empty.
func (q *Queue) Pop() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if q.closed {
			return Item{}, ErrQueueClosed
		}
		q.notEmpty.Wait()
	}
	item := heap.Pop(&q.items).(Item)
	metrics.SetQueueSize(q.items.Len())
	return item, nil
}

// Len reports the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Close wakes all blocked consumers. Remaining items are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
}

type itemHeap []Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(Item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
