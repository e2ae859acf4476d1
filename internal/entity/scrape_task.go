package entity

import (
	"fmt"
	"strings"
	"time"
)

// ResultTiers are the only accepted values for ScrapeTask.MaxResults.
var ResultTiers = []int{10, 20, 50, 100, 500, 1000, 10000}

// IsSupportedTier reports whether n is one of ResultTiers.
func IsSupportedTier(n int) bool {
	for _, t := range ResultTiers {
		if t == n {
			return true
		}
	}
	return false
}

// ScrapeTask is the authoritative record of one lead extraction job.
type ScrapeTask struct {
	ID           string     `json:"id"`
	Query        string     `json:"query"`
	MaxResults   int        `json:"maxResults"`
	Status       TaskStatus `json:"status"`
	Progress     int        `json:"progress"`
	ResultsCount int        `json:"resultsCount"`
	Results      []Lead     `json:"results"`
	CreatedAt    time.Time  `json:"createdAt"`
	CSVURL       string     `json:"csvUrl,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// NewScrapeTask builds a PENDING task for a submission. It fails with
// ErrInvalidRequest when the query is blank or maxResults is not a tier.
// CreatedAt keeps microsecond precision so it survives a Postgres round trip.
func NewScrapeTask(id, query string, maxResults int, now time.Time) (ScrapeTask, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ScrapeTask{}, fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}
	if !IsSupportedTier(maxResults) {
		return ScrapeTask{}, fmt.Errorf("%w: maxResults %d is not one of %v", ErrInvalidRequest, maxResults, ResultTiers)
	}
	if id == "" {
		return ScrapeTask{}, fmt.Errorf("%w: task id must not be empty", ErrInvalidRequest)
	}
	return ScrapeTask{
		ID:         id,
		Query:      query,
		MaxResults: maxResults,
		Status:     TaskStatusPending,
		Results:    []Lead{},
		CreatedAt:  now.UTC().Truncate(time.Microsecond),
	}, nil
}

// IsTerminal reports whether the task reached COMPLETED or FAILED.
func (t ScrapeTask) IsTerminal() bool { return t.Status.IsTerminal() }

// Clone returns a copy that shares no memory with t.
func (t ScrapeTask) Clone() ScrapeTask {
	c := t
	c.Results = make([]Lead, len(t.Results))
	copy(c.Results, t.Results)
	return c
}

// Validate checks the invariants every single snapshot must satisfy.
func (t ScrapeTask) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: empty task id", ErrInvalidTransition)
	case !t.Status.IsKnown():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, t.Status)
	case t.Progress < 0 || t.Progress > 100:
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidTransition, t.Progress)
	case t.ResultsCount != len(t.Results):
		return fmt.Errorf("%w: resultsCount %d does not match %d results", ErrInvalidTransition, t.ResultsCount, len(t.Results))
	case t.ResultsCount > t.MaxResults:
		return fmt.Errorf("%w: resultsCount %d exceeds maxResults %d", ErrInvalidTransition, t.ResultsCount, t.MaxResults)
	}

	if t.Status == TaskStatusFailed {
		if strings.TrimSpace(t.Error) == "" {
			return fmt.Errorf("%w: failed task without error message", ErrInvalidTransition)
		}
	} else if t.Error != "" {
		return fmt.Errorf("%w: error set on %s task", ErrInvalidTransition, t.Status)
	}

	if t.Status == TaskStatusCompleted {
		if t.CSVURL == "" {
			return fmt.Errorf("%w: completed task without csvUrl", ErrInvalidTransition)
		}
		if t.Progress != 100 {
			return fmt.Errorf("%w: completed task at progress %d", ErrInvalidTransition, t.Progress)
		}
	} else if t.CSVURL != "" {
		return fmt.Errorf("%w: csvUrl set on %s task", ErrInvalidTransition, t.Status)
	}

	seen := make(map[string]struct{}, len(t.Results))
	for i, l := range t.Results {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%w: result %d: %v", ErrInvalidTransition, i, err)
		}
		if _, dup := seen[l.ID]; dup {
			return fmt.Errorf("%w: duplicate lead id %q", ErrInvalidTransition, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// CheckTransition validates replacing t with next.
func (t ScrapeTask) CheckTransition(next ScrapeTask) error {
	if t.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}
	if next.ID != t.ID || next.Query != t.Query || next.MaxResults != t.MaxResults || !next.CreatedAt.Equal(t.CreatedAt) {
		return fmt.Errorf("%w: identity fields of task %s changed", ErrInvalidTransition, t.ID)
	}
	if next.Progress < t.Progress {
		return fmt.Errorf("%w: progress of task %s decreased from %d to %d", ErrInvalidTransition, t.ID, t.Progress, next.Progress)
	}
	if next.Status.Rank() < t.Status.Rank() {
		return fmt.Errorf("%w: task %s cannot move from %s to %s", ErrInvalidTransition, t.ID, t.Status, next.Status)
	}
	if len(next.Results) < len(t.Results) {
		return fmt.Errorf("%w: results of task %s shrank from %d to %d", ErrInvalidTransition, t.ID, len(t.Results), len(next.Results))
	}
	return next.Validate()
}
