package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"parcelwatch/server/internal/models"
)

var ErrQueueClosed = errors.New("queue is closed")

// ObservationQueue buffers observation batches between the collector and the
// batch processors. Producers block when the buffer is full rather than
// dropping batches; both sides unblock on context cancellation or close.
type ObservationQueue struct {
	items  chan []*models.Observation
	done   chan struct{}
	closed bool
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewObservationQueue creates a new queue with the specified buffer size.
func NewObservationQueue(bufferSize int, logger *logrus.Logger) *ObservationQueue {
	return &ObservationQueue{
		items:  make(chan []*models.Observation, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Push enqueues a batch, blocking while the buffer is full.
func (q *ObservationQueue) Push(ctx context.Context, batch []*models.Observation) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until a batch is available. After Close, buffered batches are
// still drained before ErrQueueClosed is returned.
func (q *ObservationQueue) Next(ctx context.Context) ([]*models.Observation, error) {
	select {
	case batch := <-q.items:
		return batch, nil
	case <-q.done:
		select {
		case batch := <-q.items:
			return batch, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue and prevents new items from being added.
func (q *ObservationQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	return nil
}

// Len returns the current number of buffered batches.
func (q *ObservationQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed.
func (q *ObservationQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
