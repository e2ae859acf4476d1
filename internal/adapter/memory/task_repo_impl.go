package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

type taskEntry struct {
	mu        sync.RWMutex
	seq       uint64
	createdAt time.Time
	task      entity.ScrapeTask
}

// TaskRepoImpl is an in-memory TaskRepository. Applies are serialized per
// task id; reads of a task only wait for an apply on that same task.
type TaskRepoImpl struct {
	mu      sync.RWMutex
	entries map[string]*taskEntry
	nextSeq uint64
}

// NewTaskRepo creates an empty in-memory task store.
func NewTaskRepo() *TaskRepoImpl {
	return &TaskRepoImpl{entries: make(map[string]*taskEntry)}
}

var _ repository.TaskRepository = (*TaskRepoImpl)(nil)

func (r *TaskRepoImpl) Create(ctx context.Context, task entity.ScrapeTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidRequest, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[task.ID]; ok {
		return fmt.Errorf("%w: %s", entity.ErrTaskExists, task.ID)
	}
	r.nextSeq++
	r.entries[task.ID] = &taskEntry{seq: r.nextSeq, createdAt: task.CreatedAt, task: task.Clone()}
	return nil
}

func (r *TaskRepoImpl) Get(ctx context.Context, id string) (entity.ScrapeTask, error) {
	e, err := r.entry(id)
	if err != nil {
		return entity.ScrapeTask{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.task.Clone(), nil
}

func (r *TaskRepoImpl) Apply(ctx context.Context, id string, fn repository.UpdateFunc) (entity.ScrapeTask, error) {
	e, err := r.entry(id)
	if err != nil {
		return entity.ScrapeTask{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return entity.ScrapeTask{}, err
	}

	current := e.task
	if current.IsTerminal() {
		return current.Clone(), fmt.Errorf("%w: task %s is %s", entity.ErrInvalidTransition, id, current.Status)
	}

	next, err := fn(current.Clone())
	if err != nil {
		return current.Clone(), err
	}
	if err := current.CheckTransition(next); err != nil {
		return current.Clone(), err
	}

	e.task = next.Clone()
	return next, nil
}

func (r *TaskRepoImpl) List(ctx context.Context) ([]entity.ScrapeTask, error) {
	r.mu.RLock()
	entries := make([]*taskEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].createdAt, entries[j].createdAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})

	tasks := make([]entity.ScrapeTask, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		tasks = append(tasks, e.task.Clone())
		e.mu.RUnlock()
	}
	return tasks, nil
}

func (r *TaskRepoImpl) Ping(ctx context.Context) error { return nil }

func (r *TaskRepoImpl) entry(id string) (*taskEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrNotFound, id)
	}
	return e, nil
}
