package store

import (
	"sort"
	"sync"

	"batch-delete/pkg/model"
)

// MemoryStore keeps run history for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]model.RunRecord)}
}

// SaveRun inserts or replaces the record with the same ID.
func (m *MemoryStore) SaveRun(r model.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Errors = append([]model.ErrorCount(nil), r.Errors...)
	m.runs[r.ID] = r
	return nil
}

func (m *MemoryStore) ListRuns(limit int) ([]model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) LatestRun() (model.RunRecord, bool, error) {
	runs, _ := m.ListRuns(1)
	if len(runs) == 0 {
		return model.RunRecord{}, false, nil
	}
	return runs[0], true, nil
}
