// Package queue implements the bounded two-tier event queue that links event
// sources to the debouncer. Multiple producers feed it concurrently; a single
// consumer drains it in priority order, FIFO within each priority class.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/watchexec/watchexec/internal/models"
)

// ErrClosed is returned by Send after Close. Producers treat it as the signal
// to stop publishing.
var ErrClosed = errors.New("event queue closed")

// ErrFull is returned by TrySend when the queue is at capacity.
var ErrFull = errors.New("event queue full")

// Item is one queued event with its priority.
type Item struct {
	Event    models.Event
	Priority models.Priority
}

// Queue is a bounded multi-producer single-consumer priority queue. Capacity
// bounds the total item count across all classes. Closing is observable on
// both ends: producers get ErrClosed, the consumer drains what remains and
// then sees Recv return false.
type Queue struct {
	mu     sync.Mutex
	tiers  [models.NumPriorities][]Item
	count  int
	cap    int
	closed bool

	// signals "state changed" to whoever is waiting
	wake chan struct{}

	dropped atomic.Uint64
}

// New builds a queue bounding at most capacity items.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Queue{
		cap:  capacity,
		wake: make(chan struct{}, 1),
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Send enqueues an event, blocking while the queue is full. Events from the
// internal source are never worth blocking a producer for: when the queue is
// full they are dropped and counted instead.
func (q *Queue) Send(ctx context.Context, ev models.Event, pri models.Priority) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if q.count < q.cap {
			q.tiers[pri] = append(q.tiers[pri], Item{Event: ev, Priority: pri})
			q.count++
			q.mu.Unlock()
			q.signal()
			return nil
		}
		if ev.HasSource(models.SourceInternal) {
			q.mu.Unlock()
			q.dropped.Add(1)
			return ErrFull
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
			// room may have opened up; retry
			q.signal()
		}
	}
}

// TrySend enqueues without blocking.
func (q *Queue) TrySend(ev models.Event, pri models.Priority) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.count >= q.cap {
		q.dropped.Add(1)
		return ErrFull
	}
	q.tiers[pri] = append(q.tiers[pri], Item{Event: ev, Priority: pri})
	q.count++
	q.signal()
	return nil
}

// Recv dequeues the highest-priority pending item, blocking until one is
// available, the context ends, or the queue is closed and drained. The bool
// result is false whenever no item is returned: with a nil error once the
// queue is closed and drained, with the context's error when ctx ends.
func (q *Queue) Recv(ctx context.Context) (Item, bool, error) {
	for {
		q.mu.Lock()
		for pri := models.NumPriorities - 1; pri >= 0; pri-- {
			tier := q.tiers[pri]
			if len(tier) == 0 {
				continue
			}
			item := tier[0]
			q.tiers[pri] = tier[1:]
			q.count--
			q.mu.Unlock()
			q.signal() // a blocked producer may proceed
			return item, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, false, nil
		}

		select {
		case <-ctx.Done():
			return Item{}, false, ctx.Err()
		case <-q.wake:
		}
	}
}

// Close marks the queue closed. Pending items remain receivable; further
// sends fail with ErrClosed. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Dropped reports how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
