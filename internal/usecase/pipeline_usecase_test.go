package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/leadflow-service/internal/adapter/memory"
	"github.com/user/leadflow-service/internal/adapter/simulated"
	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/lifecycle"
	"github.com/user/leadflow-service/internal/repository"
)

type pipelineFixture struct {
	repo    *recordingRepo
	queue   *memory.QueueRepoImpl
	manager TaskManager
}

func newPipelineFixture() pipelineFixture {
	repo := newRecordingRepo()
	queue := memory.NewQueueRepo()
	return pipelineFixture{
		repo:    repo,
		queue:   queue,
		manager: NewTaskManager(repo, queue, memory.NewSnapshotCache()),
	}
}

func (f pipelineFixture) pipeline(extractor repository.Extractor, enricher repository.Enricher, exporter repository.Exporter) Pipeline {
	return NewPipeline(f.repo, f.queue, extractor, enricher, exporter, 10*time.Millisecond)
}

func TestPipeline_CompletesTask(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture()
	ctx := context.Background()

	task, err := f.manager.Submit(ctx, "Bakeries Rzeszow", 20)
	require.NoError(t, err)

	p := f.pipeline(&simulated.Extractor{}, &simulated.Enricher{}, newExporter(t))
	require.NoError(t, p.ProcessTaskFromQueue(ctx))

	got, err := f.manager.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "/download/"+task.ID+".csv", got.CSVURL)
	assert.Equal(t, 20, got.ResultsCount)
	assert.Empty(t, got.Error)
	for _, lead := range got.Results {
		assert.NotEmpty(t, lead.Phone)
	}

	history := append([]entity.ScrapeTask{task}, f.repo.history(task.ID)...)
	requireMonotonic(t, history)

	var statuses []entity.TaskStatus
	for _, s := range history {
		if len(statuses) == 0 || statuses[len(statuses)-1] != s.Status {
			statuses = append(statuses, s.Status)
		}
	}
	assert.Equal(t, []entity.TaskStatus{
		entity.TaskStatusPending,
		entity.TaskStatusRunning,
		entity.TaskStatusEnriching,
		entity.TaskStatusCompleted,
	}, statuses)

	for _, s := range history[:len(history)-1] {
		assert.Empty(t, s.CSVURL, "csvUrl only appears on completion")
	}

	assert.ErrorIs(t, p.ProcessTaskFromQueue(ctx), repository.ErrQueueEmpty)
}

func TestPipeline_CollaboratorFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("actor unavailable")
	tests := []struct {
		name         string
		extractor    repository.Extractor
		enricher     repository.Enricher
		exporter     func(t *testing.T) repository.Exporter
		wantPrefix   string
		wantProgress int
	}{
		{
			name:         "extraction",
			extractor:    &simulated.Extractor{Fail: func(string) error { return boom }},
			enricher:     &simulated.Enricher{},
			exporter:     func(t *testing.T) repository.Exporter { return newExporter(t) },
			wantPrefix:   "extraction failed: actor unavailable",
			wantProgress: extractStart,
		},
		{
			name:         "enrichment",
			extractor:    &simulated.Extractor{},
			enricher:     &simulated.Enricher{Fail: func([]entity.Lead) error { return boom }},
			exporter:     func(t *testing.T) repository.Exporter { return newExporter(t) },
			wantPrefix:   "enrichment failed: actor unavailable",
			wantProgress: enrichStart,
		},
		{
			name:      "export",
			extractor: &simulated.Extractor{},
			enricher:  &simulated.Enricher{},
			exporter: func(t *testing.T) repository.Exporter {
				return exporterFunc(func(context.Context, entity.ScrapeTask) (string, error) {
					return "", errors.New("disk full")
				})
			},
			wantPrefix:   "export failed: disk full",
			wantProgress: enrichEnd,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newPipelineFixture()
			ctx := context.Background()

			task, err := f.manager.Submit(ctx, "Bakeries Rzeszow", 10)
			require.NoError(t, err)

			require.NoError(t, f.pipeline(tt.extractor, tt.enricher, tt.exporter(t)).ProcessTaskFromQueue(ctx))

			got, err := f.manager.GetStatus(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, entity.TaskStatusFailed, got.Status)
			assert.Equal(t, tt.wantPrefix, got.Error)
			assert.Equal(t, tt.wantProgress, got.Progress, "progress is frozen at failure")
			assert.Empty(t, got.CSVURL)
			requireMonotonic(t, append([]entity.ScrapeTask{task}, f.repo.history(task.ID)...))
		})
	}
}

func TestPipeline_FailsInterruptedTask(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture()

	task, err := f.manager.Submit(context.Background(), "Bakeries Rzeszow", 10)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	extractor := &simulated.Extractor{
		Delay: time.Hour,
		Fail: func(string) error {
			cancel()
			return nil
		},
	}

	require.NoError(t, f.pipeline(extractor, &simulated.Enricher{}, newExporter(t)).ProcessTaskFromQueue(ctx))

	got, err := f.manager.GetStatus(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.Error, entity.ErrExtractionFailure.Error()), got.Error)
}

func TestPipeline_SkipsTerminalTask(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture()
	ctx := context.Background()

	task, err := f.manager.Submit(ctx, "Bakeries Rzeszow", 10)
	require.NoError(t, err)
	failed, err := f.repo.Apply(ctx, task.ID, func(cur entity.ScrapeTask) (entity.ScrapeTask, error) {
		return lifecycle.Machine{}.Next(cur, lifecycle.Fail(nil))
	})
	require.NoError(t, err)

	require.NoError(t, f.pipeline(&simulated.Extractor{}, &simulated.Enricher{}, newExporter(t)).ProcessTaskFromQueue(ctx))

	got, err := f.manager.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, failed, got)
	assert.Equal(t, lifecycle.DefaultFailureMessage, got.Error)
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture()

	var ids []string
	for i := 0; i < 5; i++ {
		task, err := f.manager.Submit(context.Background(), "Bakeries Rzeszow", 10)
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	p := f.pipeline(&simulated.Extractor{}, &simulated.Enricher{}, newExporter(t))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, 3)
	}()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			task, err := f.repo.Get(context.Background(), id)
			if err != nil || task.Status != entity.TaskStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}
