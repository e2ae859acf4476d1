// Package lifecycle holds the pure transition function that moves a scrape
// task through PENDING, RUNNING, ENRICHING and into COMPLETED or FAILED.
// It performs no I/O and reads no clock, so producers and tests can drive it
// directly.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/user/leadflow-service/internal/entity"
)

const (
	// DefaultStep is the progress increment applied by a Tick.
	DefaultStep = 5

	// RunningThreshold and EnrichingThreshold are the progress values a
	// task must exceed to leave PENDING and RUNNING respectively.
	RunningThreshold   = 40
	EnrichingThreshold = 70

	// MaxPendingExportProgress caps progress while no export reference is
	// available. COMPLETED requires a csvUrl, so 100 is only reached together
	// with one.
	MaxPendingExportProgress = 99

	// DefaultFailureMessage replaces empty failure reasons.
	DefaultFailureMessage = "lead extraction failed for an unknown reason"
)

// SignalKind identifies the event fed into the machine.
type SignalKind int

const (
	SignalTick SignalKind = iota + 1
	SignalProgress
	SignalFailure
	SignalComplete
)

func (k SignalKind) String() string {
	switch k {
	case SignalTick:
		return "tick"
	case SignalProgress:
		return "progress"
	case SignalFailure:
		return "failure"
	case SignalComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Signal is one event for a task. Only the fields relevant to Kind are read.
type Signal struct {
	Kind SignalKind

	// Progress is the absolute progress reported by an engine (SignalProgress).
	Progress int
	// Phase optionally moves the status forward to RUNNING or ENRICHING.
	Phase entity.TaskStatus
	// Results, when non-nil, replaces the task's result set.
	Results []entity.Lead
	// CSVURL is the export reference; required by SignalComplete and lets a
	// Tick or Progress signal that reaches 100 complete the task.
	CSVURL string
	// Err is the collaborator failure carried by SignalFailure.
	Err error
}

// Tick advances progress by the machine step.
func Tick() Signal { return Signal{Kind: SignalTick} }

// TickWithExport is a Tick that may complete the task with csvURL.
func TickWithExport(csvURL string) Signal { return Signal{Kind: SignalTick, CSVURL: csvURL} }

// ReportProgress reports absolute engine progress.
func ReportProgress(progress int, phase entity.TaskStatus, results []entity.Lead) Signal {
	return Signal{Kind: SignalProgress, Progress: progress, Phase: phase, Results: results}
}

// Fail reports a collaborator failure.
func Fail(err error) Signal { return Signal{Kind: SignalFailure, Err: err} }

// Complete finishes the task with the given export reference.
func Complete(csvURL string, results []entity.Lead) Signal {
	return Signal{Kind: SignalComplete, CSVURL: csvURL, Results: results}
}

// Machine computes task transitions. The zero value uses DefaultStep.
type Machine struct {
	Step int
}

// Next returns the task that results from applying sig to task. The input is
// never modified. Terminal tasks and malformed signals yield an error
// wrapping entity.ErrInvalidTransition.
func (m Machine) Next(task entity.ScrapeTask, sig Signal) (entity.ScrapeTask, error) {
	if task.IsTerminal() {
		return task, fmt.Errorf("%w: task %s is already %s", entity.ErrInvalidTransition, task.ID, task.Status)
	}

	next := task.Clone()
	var target int

	switch sig.Kind {
	case SignalFailure:
		next.Status = entity.TaskStatusFailed
		next.Error = failureMessage(sig.Err)
		next.CSVURL = ""
		return next, nil

	case SignalComplete:
		if sig.CSVURL == "" {
			return task, fmt.Errorf("%w: completion of task %s without export reference", entity.ErrInvalidTransition, task.ID)
		}
		setResults(&next, sig.Results)
		next.Progress = 100
		next.Status = entity.TaskStatusCompleted
		next.CSVURL = sig.CSVURL
		return next, nil

	case SignalTick:
		target = next.Progress + m.step()

	case SignalProgress:
		if sig.Phase != "" {
			if sig.Phase != entity.TaskStatusRunning && sig.Phase != entity.TaskStatusEnriching {
				return task, fmt.Errorf("%w: %s is not a progress phase", entity.ErrInvalidTransition, sig.Phase)
			}
			if sig.Phase.Rank() > next.Status.Rank() {
				next.Status = sig.Phase
			}
		}
		setResults(&next, sig.Results)
		target = sig.Progress

	default:
		return task, fmt.Errorf("%w: unknown signal %d", entity.ErrInvalidTransition, sig.Kind)
	}

	if target < next.Progress {
		target = next.Progress
	}
	if target >= 100 {
		if sig.CSVURL != "" {
			next.Progress = 100
			next.Status = entity.TaskStatusCompleted
			next.CSVURL = sig.CSVURL
			return next, nil
		}
		target = max(next.Progress, MaxPendingExportProgress)
	}

	next.Progress = target
	next.Status = advance(next.Status, target)
	return next, nil
}

func (m Machine) step() int {
	if m.Step <= 0 {
		return DefaultStep
	}
	return m.Step
}

// advance applies the threshold rules. PENDING may cascade straight to
// ENRICHING when a single report jumps past both thresholds.
func advance(status entity.TaskStatus, progress int) entity.TaskStatus {
	if status == entity.TaskStatusPending && progress > RunningThreshold {
		status = entity.TaskStatusRunning
	}
	if status == entity.TaskStatusRunning && progress > EnrichingThreshold {
		status = entity.TaskStatusEnriching
	}
	return status
}

func setResults(task *entity.ScrapeTask, results []entity.Lead) {
	if results == nil {
		return
	}
	if len(results) > task.MaxResults {
		results = results[:task.MaxResults]
	}
	task.Results = make([]entity.Lead, len(results))
	copy(task.Results, results)
	task.ResultsCount = len(task.Results)
}

func failureMessage(err error) string {
	if err == nil {
		return DefaultFailureMessage
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return DefaultFailureMessage
	}
	return msg
}
