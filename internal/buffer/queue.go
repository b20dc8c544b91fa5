package buffer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/wayneeseguin/logship/pkg/types"
)

var (
	// ErrClosed is returned when writing to a closed Queue, or reading from one that is closed and empty.
	ErrClosed = errors.New("queue is closed")
	// ErrFull is returned when a bounded Queue rejects a write.
	ErrFull = errors.New("queue is full")
)

// DropReasonQueueFull is passed to OnDrop for items lost to the overflow policy.
const DropReasonQueueFull = "queue_full"

// Options configures a Queue.
type Options struct {
	// Capacity bounds the number of buffered items. Zero means unbounded.
	Capacity int
	Policy   types.OverflowPolicy
	// BlockTimeout bounds how long Write waits under the Block policy. Zero waits
	// until room is available or the queue is closed.
	BlockTimeout time.Duration
	// OnDrop is called, without the queue lock held, for every item the overflow policy discards.
	OnDrop func(item []byte, reason string)
}

// Queue is a multi-producer multi-consumer FIFO of frames. Each item is
// delivered to exactly one reader. The queue takes ownership of written slices.
type Queue struct {
	mu     sync.Mutex
	items  [][]byte
	head   int
	closed bool

	readable chan struct{}
	writable chan struct{}
	done     chan struct{}

	opts    Options
	dropped atomic.Uint64
}

// New creates a queue.
func New(opts Options) *Queue {
	if opts.Capacity < 0 {
		opts.Capacity = 0
	}
	return &Queue{
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
		opts:     opts,
	}
}

// Write appends item. It never blocks unless the queue is full under the Block policy.
func (q *Queue) Write(item []byte) error {
	var deadline <-chan time.Time
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}

		if q.opts.Capacity == 0 || q.lenLocked() < q.opts.Capacity {
			q.pushLocked(item)
			room := q.opts.Capacity > 0 && q.lenLocked() < q.opts.Capacity
			q.mu.Unlock()
			if room {
				signal(q.writable)
			}
			return nil
		}

		switch q.opts.Policy {
		case types.DropNewest:
			q.mu.Unlock()
			q.drop(item)
			return ErrFull

		case types.Block:
			q.mu.Unlock()
			if deadline == nil && q.opts.BlockTimeout > 0 {
				timer := time.NewTimer(q.opts.BlockTimeout)
				defer timer.Stop()
				deadline = timer.C
			}
			select {
			case <-q.writable:
			case <-q.done:
			case <-deadline:
				q.drop(item)
				return ErrFull
			}

		default:
			oldest := q.popLocked()
			q.pushLocked(item)
			q.mu.Unlock()
			q.drop(oldest)
			return nil
		}
	}
}

// Read removes and returns the oldest item, blocking until one is available.
// It returns ctx.Err() when ctx is done, and ErrClosed once the queue is closed and drained.
func (q *Queue) Read(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			item := q.popLocked()
			more := q.lenLocked() > 0
			q.mu.Unlock()

			if more {
				signal(q.readable)
			}
			signal(q.writable)
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}

		select {
		case <-q.readable:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of buffered items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns the number of items discarded by the overflow policy.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting writes. Buffered items stay readable. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) lenLocked() int {
	return len(q.items) - q.head
}

func (q *Queue) pushLocked(item []byte) {
	q.items = append(q.items, item)
	signal(q.readable)
}

func (q *Queue) popLocked() []byte {
	item := q.items[q.head]
	q.items[q.head] = nil
	q.head++

	// Reclaim the consumed prefix once it dominates the backing array
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		for i := n; i < len(q.items); i++ {
			q.items[i] = nil
		}
		q.items = q.items[:n]
		q.head = 0
	}
	return item
}

func (q *Queue) drop(item []byte) {
	q.dropped.Add(1)
	if q.opts.OnDrop != nil {
		q.opts.OnDrop(item, DropReasonQueueFull)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
