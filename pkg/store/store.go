package store

import "batch-delete/pkg/model"

// RunStore keeps the history of completed runs.
type RunStore interface {
	SaveRun(model.RunRecord) error
	// ListRuns returns the most recent runs first; limit <= 0 means all.
	ListRuns(limit int) ([]model.RunRecord, error)
	LatestRun() (model.RunRecord, bool, error)
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() RunStore {
	return NewMemoryStore()
}
