// Package stats summarizes the outcome of a run.
package stats

import (
	"slices"

	"batch-delete/pkg/model"
)

// Status breakdown keys.
const (
	StatusSuccess = "Success"
	StatusFailed  = "Failed"
	StatusRunning = "Running"
	StatusQueued  = "Queued"
	StatusRetried = "Retried"
	StatusPending = "Pending"
)

// Summary is the aggregate view of a set of items.
type Summary struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Retried   int                `json:"retried"`
	Errors    []model.ErrorCount `json:"errors"`
	Status    map[string]int     `json:"status"`
}

// Summarize counts outcomes over items. Retried counts items that needed at
// least one retry, whatever their final state. Errors lists each distinct
// failure message of a currently failed item, most frequent first, ties in
// order of first appearance.
func Summarize(items []model.Item) Summary {
	s := Summary{
		Total:  len(items),
		Errors: []model.ErrorCount{},
		Status: map[string]int{},
	}
	index := map[string]int{}
	for _, it := range items {
		s.Status[statusKey(it.State)]++
		switch it.State.Kind {
		case model.StateSucceeded:
			s.Succeeded++
		case model.StateFailed:
			s.Failed++
			msg := it.LastError
			if msg == "" {
				msg = "Unknown error"
			}
			if i, ok := index[msg]; ok {
				s.Errors[i].Count++
			} else {
				index[msg] = len(s.Errors)
				s.Errors = append(s.Errors, model.ErrorCount{Message: msg, Count: 1})
			}
		}
		if it.RetryCount > 0 {
			s.Retried++
		}
	}
	slices.SortStableFunc(s.Errors, func(a, b model.ErrorCount) int { return b.Count - a.Count })
	return s
}

// SummarizeRefs is Summarize over a slice of item pointers.
func SummarizeRefs(items []*model.Item) Summary {
	vals := make([]model.Item, 0, len(items))
	for _, it := range items {
		vals = append(vals, *it)
	}
	return Summarize(vals)
}

func statusKey(s model.State) string {
	switch s.Kind {
	case model.StateSucceeded:
		return StatusSuccess
	case model.StateFailed:
		return StatusFailed
	case model.StateRunning:
		return StatusRunning
	case model.StateQueued:
		if s.IsRetried() {
			return StatusRetried
		}
		return StatusQueued
	}
	return StatusPending
}
