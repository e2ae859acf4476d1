package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/leadflow-service/internal/entity"
)

// DefaultPollInterval matches the cadence of the backend simulation.
const DefaultPollInterval = 3 * time.Second

// ErrNotTracked is returned by Wait for ids the poller is not observing.
var ErrNotTracked = errors.New("task is not tracked")

// TaskSource is the part of the API the poller needs.
type TaskSource interface {
	Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error)
	Status(ctx context.Context, id string) (entity.ScrapeTask, error)
}

// Poller observes submitted tasks until they reach a terminal state. A
// single ticker drives all tasks; each tick starts an independent fetch per
// task, and a task never has more than one fetch in flight.
type Poller struct {
	source   TaskSource
	view     *LocalView
	interval time.Duration

	// OnUpdate is called after a fetched snapshot changed the local view.
	OnUpdate func(task entity.ScrapeTask)

	mu       sync.Mutex
	tracked  map[string]struct{}
	inFlight map[string]struct{}
	changed  chan struct{}
	wg       sync.WaitGroup
}

func NewPoller(source TaskSource, view *LocalView, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		source:   source,
		view:     view,
		interval: interval,
		tracked:  make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		changed:  make(chan struct{}),
	}
}

func (p *Poller) View() *LocalView { return p.view }

// Submit performs the submission handshake and starts observing the task.
// On failure nothing is added to the view.
func (p *Poller) Submit(ctx context.Context, query string, maxResults int) (entity.ScrapeTask, error) {
	task, err := p.source.Submit(ctx, query, maxResults)
	if err != nil {
		return entity.ScrapeTask{}, err
	}
	p.view.Put(task)
	if !task.IsTerminal() {
		p.Track(task.ID)
	}
	p.notify()
	return task, nil
}

// Track starts observing an existing task id.
func (p *Poller) Track(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[id] = struct{}{}
}

// Tracked reports whether id is still being polled.
func (p *Poller) Tracked(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tracked[id]
	return ok
}

// Run polls on every interval until ctx is cancelled. Cancelling only stops
// observation; it has no effect on the tasks themselves.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// PollOnce starts one round of fetches and waits for them. It must not be
// used concurrently with Run.
func (p *Poller) PollOnce(ctx context.Context) {
	p.poll(ctx)
	p.wg.Wait()
}

// Wait blocks until the local copy of id is terminal.
func (p *Poller) Wait(ctx context.Context, id string) (entity.ScrapeTask, error) {
	for {
		p.mu.Lock()
		changed := p.changed
		_, tracked := p.tracked[id]
		p.mu.Unlock()

		task, known := p.view.Get(id)
		if known && task.IsTerminal() {
			return task, nil
		}
		if !tracked {
			return task, fmt.Errorf("%w: %s", ErrNotTracked, id)
		}

		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-changed:
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.tracked {
		if _, busy := p.inFlight[id]; busy {
			continue
		}
		p.inFlight[id] = struct{}{}
		p.wg.Add(1)
		go p.fetch(ctx, id)
	}
}

func (p *Poller) fetch(ctx context.Context, id string) {
	defer p.wg.Done()

	task, err := p.source.Status(ctx, id)
	defer p.release(id)

	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			slog.Warn("Task no longer known to the backend, stop polling", "task_id", id)
			p.untrack(id)
			p.notify()
		case ctx.Err() != nil:
		default:
			slog.Warn("Status poll failed, retrying next tick", "task_id", id, "error", err)
		}
		return
	}

	changed := p.view.Reconcile(task)
	if task.IsTerminal() {
		p.untrack(id)
	}
	if changed {
		if p.OnUpdate != nil {
			p.OnUpdate(task)
		}
		p.notify()
	}
}

func (p *Poller) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}

func (p *Poller) untrack(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracked, id)
}

// notify wakes every Wait call.
func (p *Poller) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.changed)
	p.changed = make(chan struct{})
}
