package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// jobQueue decouples HTTP handlers from the engine so deployments can run
// on LocalStack SQS in development and AWS SQS in production.
type jobQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]jobEnvelope, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type jobEnvelope struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// MemoryQueue is a jobQueue backed by a buffered channel. It serves local
// development and tests.
type MemoryQueue struct {
	ch chan jobEnvelope
}

// NewMemoryQueue creates a MemoryQueue with the given buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch: make(chan jobEnvelope, buffer),
	}
}

var _ jobQueue = (*MemoryQueue)(nil)

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	env := jobEnvelope{
		ID:            uuid.NewString(),
		Body:          body,
		ReceiptHandle: uuid.NewString(),
	}
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message arrives, ctx is done, or waitSeconds
// elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]jobEnvelope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case env := <-q.ch:
		return q.drain(ctx, env, maxMessages), nil
	}
}

// Delete is a no-op for the in-memory queue.
func (q *MemoryQueue) Delete(context.Context, string) error {
	return nil
}

// drain collects whatever else is immediately available, up to max.
func (q *MemoryQueue) drain(ctx context.Context, first jobEnvelope, max int) []jobEnvelope {
	batch := make([]jobEnvelope, 0, max)
	batch = append(batch, first)
	for len(batch) < max {
		select {
		case <-ctx.Done():
			return batch
		case env := <-q.ch:
			batch = append(batch, env)
		default:
			return batch
		}
	}
	return batch
}
