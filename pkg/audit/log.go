package audit

import (
	"sync"

	"batch-delete/pkg/model"
)

// Log is an append-only in-memory buffer of audit entries.
type Log struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

// Append adds one entry. Entries are kept in append order.
func (l *Log) Append(e model.AuditEntry) error {
	if e.ID == "" {
		return ErrMissingID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// Clear discards every buffered entry.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a copy of the buffered entries.
func (l *Log) Entries() []model.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of buffered entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
