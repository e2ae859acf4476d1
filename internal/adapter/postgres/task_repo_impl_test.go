package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/lifecycle"
)

// newTestRepo connects to the database named by LEADFLOW_TEST_POSTGRES_DSN.
func newTestRepo(t *testing.T) *TaskRepoImpl {
	t.Helper()
	dsn := os.Getenv("LEADFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEADFLOW_TEST_POSTGRES_DSN not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(pool))
	return NewTaskRepo(pool)
}

func newTask(t *testing.T, createdAt time.Time) entity.ScrapeTask {
	t.Helper()
	task, err := entity.NewScrapeTask(uuid.NewString(), "Bakeries Rzeszow", 20, createdAt)
	require.NoError(t, err)
	return task
}

func TestTaskRepo_CreateGetApply(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(t, time.Now())
	require.NoError(t, repo.Create(ctx, task))
	assert.ErrorIs(t, repo.Create(ctx, task), entity.ErrTaskExists)

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, got)

	leads := []entity.Lead{{ID: "l1", Name: "Piekarnia Sowa", Website: "https://sowa.example"}}
	updated, err := repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		return lifecycle.Machine{}.Next(cur, lifecycle.ReportProgress(50, entity.TaskStatusRunning, leads))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ResultsCount)

	_, err = repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		cur.Progress = 10
		return cur, nil
	})
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	failed, err := repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		return lifecycle.Machine{}.Next(cur, lifecycle.Fail(errors.New("actor unavailable")))
	})
	require.NoError(t, err)

	_, err = repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) { return cur, nil })
	assert.ErrorIs(t, err, entity.ErrInvalidTransition)

	got, err = repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, failed, got)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestTaskRepo_ConcurrentApplies(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	task := newTask(t, time.Now())
	require.NoError(t, repo.Create(ctx, task))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
				return lifecycle.Machine{}.Next(cur, lifecycle.Tick())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Progress)
}

func TestTaskRepo_ListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		task := newTask(t, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(ctx, task))
		ids = append([]string{task.ID}, ids...)
	}

	tasks, err := repo.List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(tasks), 3)
	for i, id := range ids {
		assert.Equal(t, id, tasks[i].ID, fmt.Sprintf("position %d", i))
	}
}
