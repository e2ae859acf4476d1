package client

import (
	"sort"
	"sync"

	"github.com/user/leadflow-service/internal/entity"
)

// LocalView is the client-side copy of known tasks. The backend is the
// source of truth, but snapshots are ordered by content: one that is
// behind the local copy is dropped, and a terminal local copy is never
// replaced.
type LocalView struct {
	mu    sync.RWMutex
	tasks map[string]entity.ScrapeTask
}

func NewLocalView() *LocalView {
	return &LocalView{tasks: make(map[string]entity.ScrapeTask)}
}

// Put records the snapshot returned by a successful submission.
func (v *LocalView) Put(task entity.ScrapeTask) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tasks[task.ID] = task.Clone()
}

// Reconcile replaces the local copy with snapshot and reports whether the
// view changed. Snapshots older than the local copy are ignored.
func (v *LocalView) Reconcile(snapshot entity.ScrapeTask) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if cur, ok := v.tasks[snapshot.ID]; ok && isStale(cur, snapshot) {
		return false
	}
	v.tasks[snapshot.ID] = snapshot.Clone()
	return true
}

func (v *LocalView) Get(id string) (entity.ScrapeTask, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	task, ok := v.tasks[id]
	if !ok {
		return entity.ScrapeTask{}, false
	}
	return task.Clone(), true
}

// List returns all known tasks, most recently created first.
func (v *LocalView) List() []entity.ScrapeTask {
	v.mu.RLock()
	tasks := make([]entity.ScrapeTask, 0, len(v.tasks))
	for _, t := range v.tasks {
		tasks = append(tasks, t.Clone())
	}
	v.mu.RUnlock()

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks
}

func isStale(cur, snapshot entity.ScrapeTask) bool {
	switch {
	case cur.IsTerminal():
		return true
	case snapshot.Progress < cur.Progress:
		return true
	case snapshot.Status.Rank() < cur.Status.Rank():
		return true
	default:
		return len(snapshot.Results) < len(cur.Results)
	}
}
