// Package ingest feeds raw metadata records from the inbox directory into
// the engine. Producers block when the queue is full; a slow pass applies
// backpressure instead of dropping records.
package ingest

import (
	"context"
	"fmt"

	"github.com/telos-labs/catalogd/internal/record"
)

// Queue is a bounded record queue.
type Queue struct {
	ch chan record.Raw
}

// NewQueue creates a queue holding at most size records.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan record.Raw, size)}
}

// Enqueue adds a record, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, raw record.Raw) error {
	select {
	case q.ch <- raw:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue interrupted: %w", ctx.Err())
	}
}

// Drain removes and returns every record currently queued, without
// blocking. Records enqueued after Drain starts are left for the next
// pass.
func (q *Queue) Drain() []record.Raw {
	var out []record.Raw
	for {
		select {
		case raw := <-q.ch:
			out = append(out, raw)
		default:
			return out
		}
	}
}

// C exposes the receive side of the queue for callers that must drain
// concurrently with a producer.
func (q *Queue) C() <-chan record.Raw {
	return q.ch
}

// Len reports how many records are queued.
func (q *Queue) Len() int {
	return len(q.ch)
}
