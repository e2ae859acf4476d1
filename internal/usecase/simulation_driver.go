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

// SimulationDriver advances every submitted task by a fixed step on each
// tick, attaching synthetic leads as the task moves through its phases.
// One scheduler ticks all tracked tasks. Each task has at most one update in
// flight, and a slow update only delays that task.
type SimulationDriver struct {
	taskRepo  repository.TaskRepository
	queueRepo repository.QueueRepository
	exporter  repository.Exporter
	leads     repository.LeadGenerator

	machine  lifecycle.Machine
	interval time.Duration

	// FailureProbe, when set, is asked before each update whether the task
	// should fail with the returned collaborator error.
	FailureProbe func(task entity.ScrapeTask) error

	mu       sync.Mutex
	tracked  map[string]time.Time
	inFlight map[string]struct{}
}

func NewSimulationDriver(
	taskRepo repository.TaskRepository,
	queueRepo repository.QueueRepository,
	exporter repository.Exporter,
	leads repository.LeadGenerator,
	interval time.Duration,
	step int,
) *SimulationDriver {
	if step <= 0 {
		step = lifecycle.DefaultStep
	}
	return &SimulationDriver{
		taskRepo:  taskRepo,
		queueRepo: queueRepo,
		exporter:  exporter,
		leads:     leads,
		machine:   lifecycle.Machine{Step: step},
		interval:  interval,
		tracked:   make(map[string]time.Time),
		inFlight:  make(map[string]struct{}),
	}
}

// Run ticks until ctx is cancelled. Updates are started without waiting for
// the previous tick's; a task whose update is still running is skipped.
func (d *SimulationDriver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	slog.Info("Simulation driver started", "interval", d.interval.String(), "step", d.machine.Step)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Simulation driver stopped")
			return
		case <-ticker.C:
			if err := d.drainQueue(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Simulation tick failed", "error", err)
			}
			d.dispatch(ctx, &wg)
		}
	}
}

// Tick picks up newly queued tasks, advances every tracked task that has no
// update in flight, and waits for those updates.
func (d *SimulationDriver) Tick(ctx context.Context) error {
	err := d.drainQueue(ctx)

	var wg sync.WaitGroup
	d.dispatch(ctx, &wg)
	wg.Wait()
	return err
}

func (d *SimulationDriver) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id := range d.tracked {
		if _, busy := d.inFlight[id]; busy {
			continue
		}
		d.inFlight[id] = struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.release(id)
			d.advanceTask(ctx, id)
		}()
	}
}

func (d *SimulationDriver) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, id)
}

// Tracked returns the number of tasks still being advanced.
func (d *SimulationDriver) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracked)
}

func (d *SimulationDriver) drainQueue(ctx context.Context) error {
	for {
		id, err := d.queueRepo.Pop(ctx)
		if errors.Is(err, repository.ErrQueueEmpty) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pop task from queue: %w", err)
		}
		metrics.TasksInQueue.Dec()

		d.mu.Lock()
		d.tracked[id] = time.Now()
		d.mu.Unlock()
	}
}

func (d *SimulationDriver) untrack(id string) time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	started := d.tracked[id]
	delete(d.tracked, id)
	return started
}

func (d *SimulationDriver) advanceTask(ctx context.Context, id string) {
	task, err := applyRecorded(ctx, d.taskRepo, id, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		return d.next(ctx, cur)
	})
	switch {
	case errors.Is(err, entity.ErrNotFound), errors.Is(err, entity.ErrInvalidTransition):
		d.untrack(id)
		return
	case err != nil:
		slog.Warn("Failed to advance task, retrying next tick", "task_id", id, "error", err)
		return
	}

	if task.IsTerminal() {
		started := d.untrack(id)
		metrics.TaskDuration.WithLabelValues(task.Status.String()).Observe(time.Since(started).Seconds())
	}
}

// next computes one simulated step for cur.
func (d *SimulationDriver) next(ctx context.Context, cur entity.ScrapeTask) (entity.ScrapeTask, error) {
	if d.FailureProbe != nil {
		if err := d.FailureProbe(cur); err != nil {
			return d.machine.Next(cur, lifecycle.Fail(err))
		}
	}

	target := min(cur.Progress+d.machine.Step, 100)
	results := simulatedResults(d.leads, cur, target)

	if target < 100 {
		next, err := d.machine.Next(cur, lifecycle.Tick())
		if err != nil || results == nil {
			return next, err
		}
		return d.machine.Next(next, lifecycle.ReportProgress(next.Progress, "", results))
	}

	draft := cur.Clone()
	draft.Results = results
	draft.ResultsCount = len(results)
	csvURL, err := d.exporter.Export(ctx, draft)
	if err != nil {
		return d.machine.Next(cur, lifecycle.Fail(fmt.Errorf("%w: %v", entity.ErrExportFailure, err)))
	}
	return d.machine.Next(cur, lifecycle.Complete(csvURL, results))
}

// simulatedResults returns the result set a task should carry at progress,
// or nil when it has none yet. Leads are discovered between the RUNNING and
// ENRICHING thresholds and get contacts while the task is enriching.
func simulatedResults(gen repository.LeadGenerator, task entity.ScrapeTask, progress int) []entity.Lead {
	if progress <= lifecycle.RunningThreshold {
		return nil
	}

	found := task.MaxResults
	if progress < lifecycle.EnrichingThreshold {
		found = task.MaxResults * (progress - lifecycle.RunningThreshold) /
			(lifecycle.EnrichingThreshold - lifecycle.RunningThreshold)
	}
	found = max(found, len(task.Results))

	leads := make([]entity.Lead, 0, found)
	leads = append(leads, task.Results...)
	leads = append(leads, gen.GenerateLeads(task.Query, len(task.Results), found-len(task.Results))...)

	if progress > lifecycle.EnrichingThreshold {
		enriched := found * (progress - lifecycle.EnrichingThreshold) / (100 - lifecycle.EnrichingThreshold)
		for i := 0; i < enriched; i++ {
			leads[i] = leads[i].WithContacts(gen.Contacts(leads[i]))
		}
	}
	return leads
}
