package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/lifecycle"
	"github.com/user/leadflow-service/internal/repository"
	"github.com/user/leadflow-service/pkg/metrics"
)

// Progress bands reported by the pipeline. Extraction fills
// [extractStart, extractEnd], enrichment fills [enrichStart, enrichEnd] and
// the export completes the task at 100.
const (
	extractStart = 5
	extractEnd   = 70
	enrichStart  = 71
	enrichEnd    = 95

	// failTimeout bounds the final write that marks an interrupted task
	// as failed during shutdown.
	failTimeout = 5 * time.Second
)

// Pipeline defines the interface for the core extraction process.
type Pipeline interface {
	ProcessTaskFromQueue(ctx context.Context) error
	Run(ctx context.Context, workers int)
}

type pipelineUseCase struct {
	taskRepo  repository.TaskRepository
	queueRepo repository.QueueRepository
	extractor repository.Extractor
	enricher  repository.Enricher
	exporter  repository.Exporter

	machine  lifecycle.Machine
	idleWait time.Duration
}

// NewPipeline creates a new instance of the pipeline use case.
func NewPipeline(
	taskRepo repository.TaskRepository,
	queueRepo repository.QueueRepository,
	extractor repository.Extractor,
	enricher repository.Enricher,
	exporter repository.Exporter,
	idleWait time.Duration,
) Pipeline {
	return &pipelineUseCase{
		taskRepo:  taskRepo,
		queueRepo: queueRepo,
		extractor: extractor,
		enricher:  enricher,
		exporter:  exporter,
		idleWait:  idleWait,
	}
}

// Run starts workers that process queued tasks until ctx is cancelled.
func (uc *pipelineUseCase) Run(ctx context.Context, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			uc.worker(ctx, i)
		}()
	}
	wg.Wait()
}

func (uc *pipelineUseCase) worker(ctx context.Context, n int) {
	slog.Info("Pipeline worker started", "worker", n)
	defer slog.Info("Pipeline worker stopped", "worker", n)

	for ctx.Err() == nil {
		err := uc.ProcessTaskFromQueue(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrQueueEmpty) {
			slog.Error("Failed to process task from queue", "worker", n, "error", err)
		}

		t := time.NewTimer(uc.idleWait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// ProcessTaskFromQueue pops a single task id and drives it to a terminal
// state. It returns repository.ErrQueueEmpty when there is nothing to do.
func (uc *pipelineUseCase) ProcessTaskFromQueue(ctx context.Context) error {
	id, err := uc.queueRepo.Pop(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrQueueEmpty) {
			return err
		}
		return fmt.Errorf("failed to pop task from queue: %w", err)
	}
	metrics.TasksInQueue.Dec()

	slog.Info("Processing task from queue", "task_id", id)
	startTime := time.Now()

	task, err := uc.process(ctx, id)
	if err != nil {
		// Invalid transitions are already logged where they were rejected.
		if !errors.Is(err, entity.ErrInvalidTransition) {
			slog.Error("Task processing aborted", "task_id", id, "error", err)
		}
		return nil
	}

	duration := time.Since(startTime)
	metrics.TaskDuration.WithLabelValues(task.Status.String()).Observe(duration.Seconds())
	slog.Info("Task finished", "task_id", id, "status", task.Status, "results", task.ResultsCount, "duration_ms", duration.Milliseconds())
	return nil
}

func (uc *pipelineUseCase) process(ctx context.Context, id string) (entity.ScrapeTask, error) {
	task, err := uc.signal(ctx, id, lifecycle.ReportProgress(extractStart, entity.TaskStatusRunning, nil))
	if err != nil {
		return task, err
	}

	leads, err := uc.extractor.Extract(ctx, task.Query, task.MaxResults, uc.reporter(ctx, id, extractStart, extractEnd))
	if err != nil {
		return uc.fail(ctx, id, entity.ErrExtractionFailure, err)
	}
	if task, err = uc.signal(ctx, id, lifecycle.ReportProgress(extractEnd, "", leads)); err != nil {
		return task, err
	}

	if task, err = uc.signal(ctx, id, lifecycle.ReportProgress(enrichStart, entity.TaskStatusEnriching, nil)); err != nil {
		return task, err
	}
	enriched, err := uc.enricher.Enrich(ctx, task.Results, uc.reporter(ctx, id, enrichStart, enrichEnd))
	if err != nil {
		return uc.fail(ctx, id, entity.ErrEnrichmentFailure, err)
	}
	if task, err = uc.signal(ctx, id, lifecycle.ReportProgress(enrichEnd, "", enriched)); err != nil {
		return task, err
	}

	csvURL, err := uc.exporter.Export(ctx, task)
	if err != nil {
		return uc.fail(ctx, id, entity.ErrExportFailure, err)
	}
	return uc.signal(ctx, id, lifecycle.Complete(csvURL, nil))
}

func (uc *pipelineUseCase) signal(ctx context.Context, id string, sig lifecycle.Signal) (entity.ScrapeTask, error) {
	return applyRecorded(ctx, uc.taskRepo, id, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		return uc.machine.Next(cur, sig)
	})
}

// fail marks the task FAILED with the collaborator error. Tasks interrupted
// by cancellation are failed too so they do not stay in flight forever.
func (uc *pipelineUseCase) fail(ctx context.Context, id string, kind, cause error) (entity.ScrapeTask, error) {
	slog.Error("Collaborator failed", "task_id", id, "kind", kind, "error", cause)

	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
		defer cancel()
	}
	return uc.signal(ctx, id, lifecycle.Fail(fmt.Errorf("%w: %v", kind, cause)))
}

// reporter maps collaborator progress onto [from, to] and forwards it to the
// store whenever the mapped value grows.
func (uc *pipelineUseCase) reporter(ctx context.Context, id string, from, to int) repository.ProgressFunc {
	last := from
	return func(done, total int) {
		if total <= 0 {
			return
		}
		p := from + (to-from)*min(done, total)/total
		if p <= last || p >= to {
			return
		}
		last = p
		if _, err := uc.signal(ctx, id, lifecycle.ReportProgress(p, "", nil)); err != nil && ctx.Err() == nil {
			slog.Warn("Failed to record progress", "task_id", id, "progress", p, "error", err)
		}
	}
}
