package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/user/leadflow-service/internal/repository"
)

const taskQueueKey = "leadflow:queue"

// QueueRepoImpl provides a concrete implementation for the QueueRepository interface using Redis Lists.
type QueueRepoImpl struct {
	client *redis.Client
	key    string
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client, key: taskQueueKey}
}

var _ repository.QueueRepository = (*QueueRepoImpl)(nil)

// Push adds a task id to the left side of the Redis list (acting as a queue).
func (r *QueueRepoImpl) Push(ctx context.Context, taskID string) error {
	return r.client.LPush(ctx, r.key, taskID).Err()
}

// Pop removes and returns a task id from the right side of the Redis list.
// An empty list is reported as repository.ErrQueueEmpty.
func (r *QueueRepoImpl) Pop(ctx context.Context) (string, error) {
	id, err := r.client.RPop(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrQueueEmpty
	}
	return id, err
}

// Size returns the current number of items in the queue.
func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

func (r *QueueRepoImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
