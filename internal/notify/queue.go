package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"homestay-booking/internal/domain"
	"homestay-booking/internal/logger"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

type QueueOptions struct {
	Workers    int
	Size       int
	MaxRetries int
	Backoff    time.Duration
}

// Queue decouples event delivery from the request that produced the event.
// Publish never blocks; delivery happens on a fixed pool of workers.
type Queue struct {
	next    Publisher
	opts    QueueOptions
	events  chan domain.Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewQueue(next Publisher, opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	q := &Queue{next: next, opts: opts, events: make(chan domain.Event, opts.Size)}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

func (q *Queue) Publish(ctx context.Context, event domain.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.events <- event:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped counts events refused because the buffer was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.events)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for event := range q.events {
		q.deliver(event)
	}
}

func (q *Queue) deliver(event domain.Event) {
	ctx := context.Background()
	var err error
	for attempt := 0; attempt <= q.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.opts.Backoff * time.Duration(1<<(attempt-1)))
		}
		if err = q.next.Publish(ctx, event); err == nil {
			return
		}
		logger.Warn("Event delivery failed", "type", event.Type, "bookingID", event.BookingID, "attempt", attempt+1, "error", err)
	}
	logger.Error("Giving up on event", "type", event.Type, "bookingID", event.BookingID, "error", err)
}
