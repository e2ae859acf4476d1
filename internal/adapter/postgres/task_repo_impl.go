package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

const selectTaskColumns = `
	SELECT id, query, max_results, status, progress, results_count, results,
	       created_at, COALESCE(csv_url, ''), COALESCE(error, '')
	FROM scrape_tasks`

// TaskRepoImpl provides a concrete implementation for the TaskRepository interface using PostgreSQL.
// Applies lock the task row for the duration of the transaction, which
// serializes updates of the same task across service instances.
type TaskRepoImpl struct {
	db *pgxpool.Pool
}

// NewTaskRepo creates a new instance of TaskRepoImpl.
func NewTaskRepo(db *pgxpool.Pool) *TaskRepoImpl {
	return &TaskRepoImpl{db: db}
}

var _ repository.TaskRepository = (*TaskRepoImpl)(nil)

// Create inserts a new task row.
func (r *TaskRepoImpl) Create(ctx context.Context, task entity.ScrapeTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrInvalidRequest, err)
	}
	resultsJSON, err := json.Marshal(task.Results)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scrape_tasks (id, query, max_results, status, progress, results_count, results, created_at, csv_url, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
		ON CONFLICT (id) DO NOTHING;
	`
	tag, err := r.db.Exec(ctx, query,
		task.ID,
		task.Query,
		task.MaxResults,
		task.Status.String(),
		task.Progress,
		task.ResultsCount,
		resultsJSON,
		task.CreatedAt,
		task.CSVURL,
		task.Error,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", entity.ErrTaskExists, task.ID)
	}
	return nil
}

// Get retrieves a task by id.
func (r *TaskRepoImpl) Get(ctx context.Context, id string) (entity.ScrapeTask, error) {
	task, err := scanTask(r.db.QueryRow(ctx, selectTaskColumns+` WHERE id = $1;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ScrapeTask{}, fmt.Errorf("%w: %s", entity.ErrNotFound, id)
	}
	return task, err
}

// Apply reads the task with SELECT ... FOR UPDATE, computes the next snapshot
// and writes it back within one transaction.
func (r *TaskRepoImpl) Apply(ctx context.Context, id string, fn repository.UpdateFunc) (entity.ScrapeTask, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return entity.ScrapeTask{}, err
	}
	defer tx.Rollback(ctx)

	current, err := scanTask(tx.QueryRow(ctx, selectTaskColumns+` WHERE id = $1 FOR UPDATE;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return entity.ScrapeTask{}, fmt.Errorf("%w: %s", entity.ErrNotFound, id)
	}
	if err != nil {
		return entity.ScrapeTask{}, err
	}
	if current.IsTerminal() {
		return current, fmt.Errorf("%w: task %s is %s", entity.ErrInvalidTransition, id, current.Status)
	}

	next, err := fn(current.Clone())
	if err != nil {
		return current, err
	}
	if err := current.CheckTransition(next); err != nil {
		return current, err
	}

	resultsJSON, err := json.Marshal(next.Results)
	if err != nil {
		return current, err
	}
	query := `
		UPDATE scrape_tasks SET
			status = $2,
			progress = $3,
			results_count = $4,
			results = $5,
			csv_url = NULLIF($6, ''),
			error = NULLIF($7, ''),
			updated_at = NOW()
		WHERE id = $1;
	`
	if _, err := tx.Exec(ctx, query,
		id,
		next.Status.String(),
		next.Progress,
		next.ResultsCount,
		resultsJSON,
		next.CSVURL,
		next.Error,
	); err != nil {
		return current, fmt.Errorf("update task %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return current, err
	}
	return next, nil
}

// List returns all tasks, newest first.
func (r *TaskRepoImpl) List(ctx context.Context) ([]entity.ScrapeTask, error) {
	rows, err := r.db.Query(ctx, selectTaskColumns+` ORDER BY created_at DESC, seq DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []entity.ScrapeTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanTask(row pgx.Row) (entity.ScrapeTask, error) {
	var (
		task        entity.ScrapeTask
		status      string
		resultsJSON []byte
	)
	err := row.Scan(
		&task.ID,
		&task.Query,
		&task.MaxResults,
		&status,
		&task.Progress,
		&task.ResultsCount,
		&resultsJSON,
		&task.CreatedAt,
		&task.CSVURL,
		&task.Error,
	)
	if err != nil {
		return entity.ScrapeTask{}, err
	}

	parsed, ok := entity.ParseTaskStatus(status)
	if !ok {
		return entity.ScrapeTask{}, fmt.Errorf("task %s has unknown status %q", task.ID, status)
	}
	task.Status = parsed
	task.CreatedAt = task.CreatedAt.UTC()

	task.Results = []entity.Lead{}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &task.Results); err != nil {
			return entity.ScrapeTask{}, fmt.Errorf("decode results of task %s: %w", task.ID, err)
		}
	}
	return task, nil
}
