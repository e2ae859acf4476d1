package repository

import (
	"context"

	"github.com/user/leadflow-service/internal/entity"
)

// UpdateFunc computes the next snapshot of a task from its current one.
type UpdateFunc func(current entity.ScrapeTask) (entity.ScrapeTask, error)

// TaskRepository is the authoritative collection of scrape tasks.
type TaskRepository interface {
	// Create stores a new task. It fails with entity.ErrTaskExists when the
	// id is already taken and entity.ErrInvalidRequest for invalid tasks.
	Create(ctx context.Context, task entity.ScrapeTask) error
	// Get returns a snapshot of the task or entity.ErrNotFound.
	Get(ctx context.Context, id string) (entity.ScrapeTask, error)
	// Apply runs fn on the current snapshot while holding the task's
	// exclusive lock and stores the result if it is a valid transition.
	// Errors from fn are returned unchanged; rejected transitions and
	// updates of terminal tasks wrap entity.ErrInvalidTransition.
	Apply(ctx context.Context, id string, fn UpdateFunc) (entity.ScrapeTask, error)
	// List returns all tasks, most recently created first.
	List(ctx context.Context) ([]entity.ScrapeTask, error)
	// Ping checks the backing storage.
	Ping(ctx context.Context) error
}
