package simulated

import (
	"context"
	"time"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/internal/repository"
)

// Extractor produces synthetic leads, one per Delay.
type Extractor struct {
	Delay time.Duration
	// Fail, when set, is consulted before extraction starts and its error
	// returned as the engine failure.
	Fail func(query string) error
}

var (
	_ repository.Extractor     = (*Extractor)(nil)
	_ repository.LeadGenerator = Generator{}
)

func (e *Extractor) Extract(ctx context.Context, query string, maxResults int, progress repository.ProgressFunc) ([]entity.Lead, error) {
	if e.Fail != nil {
		if err := e.Fail(query); err != nil {
			return nil, err
		}
	}

	leads := make([]entity.Lead, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		if err := sleep(ctx, e.Delay); err != nil {
			return nil, err
		}
		leads = append(leads, GenerateLeads(query, i, 1)...)
		if progress != nil {
			progress(i+1, maxResults)
		}
	}
	return leads, nil
}

// Enricher fills synthetic contact details, one lead per Delay.
type Enricher struct {
	Delay time.Duration
	Fail  func(leads []entity.Lead) error
}

var _ repository.Enricher = (*Enricher)(nil)

func (e *Enricher) Enrich(ctx context.Context, leads []entity.Lead, progress repository.ProgressFunc) ([]entity.Lead, error) {
	if e.Fail != nil {
		if err := e.Fail(leads); err != nil {
			return nil, err
		}
	}

	out := make([]entity.Lead, len(leads))
	for i, lead := range leads {
		if err := sleep(ctx, e.Delay); err != nil {
			return nil, err
		}
		out[i] = lead.WithContacts(Contacts(lead))
		if progress != nil {
			progress(i+1, len(leads))
		}
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
