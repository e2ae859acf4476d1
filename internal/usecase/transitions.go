package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
	"github.com/user/leadflow-service/pkg/metrics"
)

// applyRecorded runs fn through the store and records status changes and
// rejected transitions.
func applyRecorded(ctx context.Context, repo repository.TaskRepository, id string, fn repository.UpdateFunc) (entity.ScrapeTask, error) {
	var prev entity.TaskStatus
	next, err := repo.Apply(ctx, id, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		prev = cur.Status
		return fn(cur)
	})
	if err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			metrics.RejectedTransitions.Inc()
			slog.Error("Rejected task transition", "task_id", id, "error", err)
		}
		return next, err
	}

	if next.Status != prev {
		metrics.TaskTransitions.WithLabelValues(next.Status.String()).Inc()
		slog.Info("Task status changed", "task_id", id, "from", prev, "to", next.Status, "progress", next.Progress)
	}
	if next.Status == entity.TaskStatusFailed {
		metrics.TaskFailures.WithLabelValues(failureKind(next.Error)).Inc()
	}
	return next, nil
}

// failureKind maps a stored failure message back to the collaborator that
// caused it, e.g. "extraction failed: timeout" to "extraction".
func failureKind(msg string) string {
	for _, kind := range []error{entity.ErrExtractionFailure, entity.ErrEnrichmentFailure, entity.ErrExportFailure} {
		if strings.HasPrefix(msg, kind.Error()) {
			return strings.TrimSuffix(kind.Error(), " failed")
		}
	}
	return "unknown"
}
