package memory

import (
	"context"
	"sync"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

// SnapshotCacheImpl keeps terminal snapshots in a map for the lifetime of
// the process.
type SnapshotCacheImpl struct {
	mu    sync.RWMutex
	tasks map[string]entity.ScrapeTask
}

func NewSnapshotCache() *SnapshotCacheImpl {
	return &SnapshotCacheImpl{tasks: make(map[string]entity.ScrapeTask)}
}

var _ repository.SnapshotCache = (*SnapshotCacheImpl)(nil)

func (c *SnapshotCacheImpl) Put(ctx context.Context, task entity.ScrapeTask) error {
	if !task.IsTerminal() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tasks[task.ID]; !ok {
		c.tasks[task.ID] = task.Clone()
	}
	return nil
}

func (c *SnapshotCacheImpl) Get(ctx context.Context, id string) (entity.ScrapeTask, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	task, ok := c.tasks[id]
	if !ok {
		return entity.ScrapeTask{}, false, nil
	}
	return task.Clone(), true, nil
}
