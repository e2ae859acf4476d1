package repository

import (
	"context"

	"github.com/user/leadflow-service/internal/entity"
)

// SnapshotCache keeps terminal task snapshots. Terminal tasks never change,
// so a cached value is valid for as long as it is kept.
type SnapshotCache interface {
	// Put stores the snapshot. Non-terminal tasks are ignored.
	Put(ctx context.Context, task entity.ScrapeTask) error
	// Get returns the cached snapshot and whether it was found.
	Get(ctx context.Context, id string) (entity.ScrapeTask, bool, error)
}
