package engine

import (
	"slices"
	"sync"
	"time"

	"batch-delete/pkg/model"
)

// Observer receives a counter snapshot after every state transition.
type Observer func(model.Counters)

// Run is one pass of the engine over a subset of items. Items and counters
// change together under one lock, so readers never see them disagree.
type Run struct {
	ID        string
	Kind      model.RunKind
	StartedAt time.Time

	mu          sync.Mutex
	items       []*model.Item
	counters    model.Counters
	completedAt *time.Time
	observe     Observer
}

func newRun(id string, kind model.RunKind, items []*model.Item, now time.Time, observe Observer) *Run {
	r := &Run{
		ID:        id,
		Kind:      kind,
		StartedAt: now,
		items:     items,
		observe:   observe,
	}
	r.counters = model.Counters{RunID: id, Kind: kind, Total: len(items)}
	for _, it := range items {
		it.State = model.Queued
		r.counters.Queued++
	}
	return r
}

// Counters returns the current counter snapshot.
func (r *Run) Counters() model.Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Items returns copies of the run's items.
func (r *Run) Items() []model.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Item, len(r.items))
	for i, it := range r.items {
		out[i] = *it
	}
	return out
}

// CompletedAt is nil while the run is in progress.
func (r *Run) CompletedAt() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// Record summarizes the run for history.
func (r *Run) Record(actor string) model.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.RunRecord{
		ID:          r.ID,
		Kind:        r.Kind,
		Actor:       actor,
		StartedAt:   r.StartedAt,
		CompletedAt: r.completedAt,
		Counters:    r.counters,
	}
}

// transition moves item to the given state, applying mutate (if any) to the
// item in the same critical section, and publishes the new counters.
func (r *Run) transition(item *model.Item, to model.State, mutate func(*model.Item)) model.Counters {
	r.mu.Lock()
	r.bucket(item.State, -1)
	item.State = to
	if mutate != nil {
		mutate(item)
	}
	r.bucket(to, +1)
	snap := r.counters
	r.mu.Unlock()
	r.publish(snap)
	return snap
}

// start moves a queued member item to Running. It fails without touching the
// counters when the item is foreign, not queued, or the run is over.
func (r *Run) start(item *model.Item) error {
	r.mu.Lock()
	switch {
	case r.completedAt != nil:
		r.mu.Unlock()
		return ErrRunCompleted
	case !slices.Contains(r.items, item):
		r.mu.Unlock()
		return ErrNotInRun
	case item.State.Kind != model.StateQueued:
		r.mu.Unlock()
		return ErrNotQueued
	}
	r.bucket(item.State, -1)
	item.State = model.Running
	r.bucket(model.Running, +1)
	snap := r.counters
	r.mu.Unlock()
	r.publish(snap)
	return nil
}

// update mutates item fields that do not affect the counters.
func (r *Run) update(item *model.Item, mutate func(*model.Item)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(item)
}

// complete marks the run done. Only the first call publishes; ok is false
// for later calls.
func (r *Run) complete(now time.Time) (c model.Counters, ok bool) {
	r.mu.Lock()
	if r.completedAt != nil {
		c = r.counters
		r.mu.Unlock()
		return c, false
	}
	r.completedAt = &now
	r.counters.Done = true
	c = r.counters
	r.mu.Unlock()
	r.publish(c)
	return c, true
}

func (r *Run) bucket(s model.State, delta int) {
	switch s.Kind {
	case model.StateQueued:
		r.counters.Queued += delta
	case model.StateRunning:
		r.counters.Running += delta
	case model.StateSucceeded:
		r.counters.Succeeded += delta
	case model.StateFailed:
		r.counters.Failed += delta
	}
}

func (r *Run) publish(c model.Counters) {
	if r.observe != nil {
		r.observe(c)
	}
}
