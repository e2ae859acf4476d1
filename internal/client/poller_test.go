package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/leadflow-service/internal/entity"
)

// countingSource counts status fetches per id.
type countingSource struct {
	TaskSource

	mu    sync.Mutex
	calls map[string]int
}

func (s *countingSource) Status(ctx context.Context, id string) (entity.ScrapeTask, error) {
	s.mu.Lock()
	s.calls[id]++
	s.mu.Unlock()
	return s.TaskSource.Status(ctx, id)
}

func (s *countingSource) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

// fakeSource answers status calls with fn.
type fakeSource struct {
	submit func(query string, maxResults int) (entity.ScrapeTask, error)
	status func(ctx context.Context, id string) (entity.ScrapeTask, error)
}

func (f fakeSource) Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error) {
	return f.submit(query, maxResults)
}

func (f fakeSource) Status(ctx context.Context, id string) (entity.ScrapeTask, error) {
	return f.status(ctx, id)
}

func TestPoller_ObservesTaskToCompletion(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	source := &countingSource{TaskSource: New(b.server.URL), calls: make(map[string]int)}
	p := NewPoller(source, NewLocalView(), time.Hour)

	var (
		mu       sync.Mutex
		observed []entity.ScrapeTask
	)
	p.OnUpdate = func(task entity.ScrapeTask) {
		mu.Lock()
		observed = append(observed, task)
		mu.Unlock()
	}

	ctx := context.Background()
	task, err := p.Submit(ctx, "Bakeries Rzeszow", 20)
	require.NoError(t, err)
	require.True(t, p.Tracked(task.ID))

	for i := 0; i < 10; i++ {
		require.NoError(t, b.driver.Tick(ctx))
		p.PollOnce(ctx)
	}

	final, ok := p.View().Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, entity.TaskStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, "/download/"+task.ID+".csv", final.CSVURL)
	assert.False(t, p.Tracked(task.ID))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, observed)
	order := map[entity.TaskStatus]int{}
	for i, s := range observed {
		if i > 0 {
			assert.GreaterOrEqual(t, s.Progress, observed[i-1].Progress)
			assert.GreaterOrEqual(t, s.Status.Rank(), observed[i-1].Status.Rank())
		}
		if s.Status != entity.TaskStatusCompleted {
			assert.Empty(t, s.CSVURL)
		}
		order[s.Status]++
	}
	assert.Equal(t, 1, order[entity.TaskStatusCompleted])

	calls := source.count(task.ID)
	for i := 0; i < 3; i++ {
		p.PollOnce(ctx)
	}
	assert.Equal(t, calls, source.count(task.ID), "terminal tasks are not polled again")
}

func TestPoller_Wait(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	p := NewPoller(New(b.server.URL), NewLocalView(), 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task, err := p.Submit(ctx, "Bakeries Rzeszow", 10)
	require.NoError(t, err)

	go p.Run(ctx)
	go func() {
		for ctx.Err() == nil {
			_ = b.driver.Tick(ctx)
			time.Sleep(5 * time.Millisecond)
		}
	}()

	final, err := p.Wait(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusCompleted, final.Status)

	_, err = p.Wait(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestPoller_SubmitFailureCreatesNoEntry(t *testing.T) {
	t.Parallel()
	b := newBackend(t)
	p := NewPoller(New(b.server.URL), NewLocalView(), time.Hour)

	_, err := p.Submit(context.Background(), "Bakeries Rzeszow", 3)
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
	assert.Empty(t, p.View().List())
}

func TestPoller_ErrorHandling(t *testing.T) {
	t.Parallel()

	var fails atomic.Int32
	running := entity.ScrapeTask{ID: "flaky", Status: entity.TaskStatusRunning, Progress: 45, Results: []entity.Lead{}}
	source := fakeSource{
		status: func(ctx context.Context, id string) (entity.ScrapeTask, error) {
			switch id {
			case "gone":
				return entity.ScrapeTask{}, &APIError{StatusCode: 404}
			default:
				if fails.Add(1) == 1 {
					return entity.ScrapeTask{}, &APIError{StatusCode: 503}
				}
				return running, nil
			}
		},
	}

	p := NewPoller(source, NewLocalView(), time.Hour)
	p.Track("gone")
	p.Track("flaky")

	p.PollOnce(context.Background())
	assert.False(t, p.Tracked("gone"), "404 stops polling")
	assert.True(t, p.Tracked("flaky"), "transient errors are retried")
	_, ok := p.View().Get("flaky")
	assert.False(t, ok)

	p.PollOnce(context.Background())
	got, ok := p.View().Get("flaky")
	require.True(t, ok)
	assert.Equal(t, 45, got.Progress)
	assert.True(t, p.Tracked("flaky"))
}

func TestPoller_OneFetchInFlightPerTask(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var calls atomic.Int32
	source := fakeSource{
		status: func(ctx context.Context, id string) (entity.ScrapeTask, error) {
			calls.Add(1)
			<-release
			return entity.ScrapeTask{}, errors.New("unavailable")
		},
	}

	p := NewPoller(source, NewLocalView(), time.Hour)
	p.Track("slow")

	ctx := context.Background()
	p.poll(ctx)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	p.poll(ctx)
	p.poll(ctx)

	close(release)
	p.wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}
