package repository

import (
	"context"

	"github.com/user/leadflow-service/internal/entity"
)

// ProgressFunc receives incremental progress from a collaborator engine:
// done units out of total. Implementations call it from a single goroutine
// at a time.
type ProgressFunc func(done, total int)

// Extractor discovers businesses matching a query. The returned leads carry
// no contact fields and are in discovery order.
type Extractor interface {
	Extract(ctx context.Context, query string, maxResults int, progress ProgressFunc) ([]entity.Lead, error)
}

// Enricher looks up contact details for leads. It returns new Lead values;
// the input slice is left untouched.
type Enricher interface {
	Enrich(ctx context.Context, leads []entity.Lead, progress ProgressFunc) ([]entity.Lead, error)
}

// Exporter produces a downloadable artifact for a task and returns an opaque
// reference to it.
type Exporter interface {
	Export(ctx context.Context, task entity.ScrapeTask) (string, error)
}

// LeadGenerator produces synthetic leads for simulated runs. The same query
// and offset must always yield the same leads.
type LeadGenerator interface {
	GenerateLeads(query string, offset, n int) []entity.Lead
	Contacts(lead entity.Lead) (email, phone string)
}
