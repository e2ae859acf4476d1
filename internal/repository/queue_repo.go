package repository

import (
	"context"
	"errors"
)

// ErrQueueEmpty is returned by Pop when there is nothing to process.
var ErrQueueEmpty = errors.New("queue is empty")

// QueueRepository defines a FIFO queue of submitted task ids.
type QueueRepository interface {
	// Push adds a task id to the end of the queue.
	Push(ctx context.Context, taskID string) error
	// Pop removes and returns the id at the front of the queue, or
	// ErrQueueEmpty.
	Pop(ctx context.Context) (string, error)
	// Size returns the current number of queued ids.
	Size(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
