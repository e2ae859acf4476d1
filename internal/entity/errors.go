package entity

import "errors"

var (
	// ErrInvalidRequest is returned for submissions with an empty query or an
	// unsupported result tier. No task is created.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned for lookups of unknown task ids.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition marks an update that would break a lifecycle or
	// monotonicity invariant. Such updates are rejected, never applied.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrTaskExists is returned by stores when a generated id collides.
	ErrTaskExists = errors.New("task already exists")

	ErrExtractionFailure = errors.New("extraction failed")
	ErrEnrichmentFailure = errors.New("enrichment failed")
	ErrExportFailure     = errors.New("export failed")
)
