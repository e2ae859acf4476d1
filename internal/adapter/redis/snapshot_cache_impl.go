package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

const snapshotKeyPrefix = "leadflow:snapshot:"

// SnapshotCacheImpl stores terminal task snapshots as JSON strings with an expiry.
type SnapshotCacheImpl struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a new instance of SnapshotCacheImpl.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCacheImpl {
	return &SnapshotCacheImpl{client: client, ttl: ttl}
}

var _ repository.SnapshotCache = (*SnapshotCacheImpl)(nil)

func (c *SnapshotCacheImpl) generateKey(id string) string {
	return fmt.Sprintf("%s%s", snapshotKeyPrefix, id)
}

// Put caches a terminal snapshot. SET NX keeps the first stored value, which
// is the only value a terminal task can have.
func (c *SnapshotCacheImpl) Put(ctx context.Context, task entity.ScrapeTask) error {
	if !task.IsTerminal() {
		return nil
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", task.ID, err)
	}
	return c.client.SetNX(ctx, c.generateKey(task.ID), payload, c.ttl).Err()
}

// Get returns the cached snapshot for id, if any.
func (c *SnapshotCacheImpl) Get(ctx context.Context, id string) (entity.ScrapeTask, bool, error) {
	payload, err := c.client.Get(ctx, c.generateKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.ScrapeTask{}, false, nil
	}
	if err != nil {
		return entity.ScrapeTask{}, false, err
	}

	var task entity.ScrapeTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return entity.ScrapeTask{}, false, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return task, true, nil
}
