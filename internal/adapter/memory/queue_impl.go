package memory

import (
	"context"
	"sync"

	"github.com/user/leadflow-service/internal/repository"
)

// QueueRepoImpl is an in-process FIFO of task ids.
type QueueRepoImpl struct {
	mu    sync.Mutex
	items []string
}

// NewQueueRepo creates an empty queue.
func NewQueueRepo() *QueueRepoImpl {
	return &QueueRepoImpl{}
}

var _ repository.QueueRepository = (*QueueRepoImpl)(nil)

func (q *QueueRepoImpl) Push(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, taskID)
	return nil
}

func (q *QueueRepoImpl) Pop(ctx context.Context) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", repository.ErrQueueEmpty
	}
	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return id, nil
}

func (q *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *QueueRepoImpl) Ping(ctx context.Context) error { return nil }
