package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
	"github.com/user/leadflow-service/pkg/metrics"
)

// maxIDAttempts bounds id regeneration after collisions.
const maxIDAttempts = 3

// TaskManager defines submission and read access to scrape tasks.
type TaskManager interface {
	Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error)
	GetStatus(ctx context.Context, id string) (entity.ScrapeTask, error)
	List(ctx context.Context) ([]entity.ScrapeTask, error)
}

type taskManagerUseCase struct {
	taskRepo  repository.TaskRepository
	queueRepo repository.QueueRepository
	cache     repository.SnapshotCache

	newID func() string
	now   func() time.Time
}

// NewTaskManager creates a new TaskManager use case.
func NewTaskManager(
	taskRepo repository.TaskRepository,
	queueRepo repository.QueueRepository,
	cache repository.SnapshotCache,
) TaskManager {
	return &taskManagerUseCase{
		taskRepo:  taskRepo,
		queueRepo: queueRepo,
		cache:     cache,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Submit validates the request, stores a PENDING task and queues it for a
// producer. Invalid requests never touch the store.
func (uc *taskManagerUseCase) Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error) {
	now := uc.now()

	var (
		task entity.ScrapeTask
		err  error
	)
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		task, err = entity.NewScrapeTask(uc.newID(), query, maxResults, now)
		if err != nil {
			metrics.TasksSubmitted.WithLabelValues("rejected").Inc()
			return entity.ScrapeTask{}, err
		}

		err = uc.taskRepo.Create(ctx, task)
		if err == nil {
			break
		}
		if !errors.Is(err, entity.ErrTaskExists) {
			metrics.TasksSubmitted.WithLabelValues("error").Inc()
			return entity.ScrapeTask{}, fmt.Errorf("failed to create task: %w", err)
		}
		slog.Warn("Generated task id already taken, retrying", "task_id", task.ID, "attempt", attempt)
	}
	if err != nil {
		metrics.TasksSubmitted.WithLabelValues("error").Inc()
		return entity.ScrapeTask{}, fmt.Errorf("failed to allocate task id: %w", err)
	}

	if err := uc.queueRepo.Push(ctx, task.ID); err != nil {
		// The task is stored and visible; it just will not be picked up.
		slog.Error("Failed to queue task after creating it", "task_id", task.ID, "error", err)
	} else {
		metrics.TasksInQueue.Inc()
	}

	metrics.TasksSubmitted.WithLabelValues("accepted").Inc()
	slog.Info("Task submitted", "task_id", task.ID, "query", task.Query, "max_results", task.MaxResults)
	return task, nil
}

// GetStatus returns the current snapshot. It never advances the task.
func (uc *taskManagerUseCase) GetStatus(ctx context.Context, id string) (entity.ScrapeTask, error) {
	if cached, found, err := uc.cache.Get(ctx, id); err != nil {
		slog.Warn("Snapshot cache lookup failed, falling back to store", "task_id", id, "error", err)
	} else if found {
		return cached, nil
	}

	task, err := uc.taskRepo.Get(ctx, id)
	if err != nil {
		return entity.ScrapeTask{}, err
	}

	if task.IsTerminal() {
		if err := uc.cache.Put(ctx, task); err != nil {
			slog.Warn("Failed to cache terminal snapshot", "task_id", id, "error", err)
		}
	}
	return task, nil
}

func (uc *taskManagerUseCase) List(ctx context.Context) ([]entity.ScrapeTask, error) {
	return uc.taskRepo.List(ctx)
}
