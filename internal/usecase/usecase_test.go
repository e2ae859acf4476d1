package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/leadflow-service/internal/adapter/csvexport"
	"github.com/user/leadflow-service/internal/adapter/memory"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

// recordingRepo keeps every snapshot stored through Apply.
type recordingRepo struct {
	repository.TaskRepository

	mu        sync.Mutex
	snapshots map[string][]entity.ScrapeTask
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{
		TaskRepository: memory.NewTaskRepo(),
		snapshots:      make(map[string][]entity.ScrapeTask),
	}
}

func (r *recordingRepo) Apply(ctx context.Context, id string, fn repository.UpdateFunc) (entity.ScrapeTask, error) {
	task, err := r.TaskRepository.Apply(ctx, id, fn)
	if err == nil {
		r.mu.Lock()
		r.snapshots[id] = append(r.snapshots[id], task)
		r.mu.Unlock()
	}
	return task, err
}

func (r *recordingRepo) history(id string) []entity.ScrapeTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.ScrapeTask(nil), r.snapshots[id]...)
}

type exporterFunc func(ctx context.Context, task entity.ScrapeTask) (string, error)

func (f exporterFunc) Export(ctx context.Context, task entity.ScrapeTask) (string, error) {
	return f(ctx, task)
}

type failingQueue struct {
	repository.QueueRepository
}

func (failingQueue) Push(ctx context.Context, taskID string) error {
	return errors.New("redis: connection refused")
}

func newExporter(t *testing.T) *csvexport.ExporterImpl {
	t.Helper()
	exp, err := csvexport.NewExporter(t.TempDir(), "/download")
	require.NoError(t, err)
	return exp
}

// requireMonotonic checks the invariants that hold between consecutive
// observations of one task.
func requireMonotonic(t *testing.T, observed []entity.ScrapeTask) {
	t.Helper()
	for i := 1; i < len(observed); i++ {
		prev, next := observed[i-1], observed[i]
		require.GreaterOrEqual(t, next.Progress, prev.Progress, "progress regressed at %d", i)
		require.GreaterOrEqual(t, next.Status.Rank(), prev.Status.Rank(), "status regressed at %d", i)
		require.GreaterOrEqual(t, next.ResultsCount, prev.ResultsCount, "results shrank at %d", i)
		require.NoError(t, next.Validate())
	}
}
