package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"batch-delete/pkg/model"
)

func TestSummarize(t *testing.T) {
	items := []model.Item{
		{ID: "A", State: model.Succeeded},
		{ID: "B", State: model.Succeeded, RetryCount: 2},
		{ID: "C", State: model.Failed, LastError: "HTTP 500 while deleting"},
		{ID: "D", State: model.Failed, LastError: "Lookup failed (no matching device)", RetryCount: 1},
		{ID: "E", State: model.Failed, LastError: "Lookup failed (no matching device)"},
		{ID: "F", State: model.Failed, LastError: "Network error while deleting"},
		{ID: "G", State: model.Retried(1), RetryCount: 1},
		{ID: "H", State: model.Pending},
	}

	s := Summarize(items)
	assert.Equal(t, 8, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 4, s.Failed)
	assert.Equal(t, 3, s.Retried)
	assert.Equal(t, []model.ErrorCount{
		{Message: "Lookup failed (no matching device)", Count: 2},
		{Message: "HTTP 500 while deleting", Count: 1},
		{Message: "Network error while deleting", Count: 1},
	}, s.Errors)
	assert.Equal(t, map[string]int{
		StatusSuccess: 2,
		StatusFailed:  4,
		StatusRetried: 1,
		StatusPending: 1,
	}, s.Status)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Total)
	assert.NotNil(t, s.Errors)
	assert.Empty(t, s.Errors)
}

func TestSummarize_TiesKeepFirstSeenOrder(t *testing.T) {
	var items []model.Item
	for _, msg := range []string{"z", "a", "m", "a", "z", "m"} {
		items = append(items, model.Item{State: model.Failed, LastError: msg})
	}
	s := Summarize(items)
	assert.Equal(t, []model.ErrorCount{{Message: "z", Count: 2}, {Message: "a", Count: 2}, {Message: "m", Count: 2}}, s.Errors)
}

func TestSummarizeRefs(t *testing.T) {
	s := SummarizeRefs([]*model.Item{{State: model.Succeeded}, {State: model.Running}})
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 1, s.Status[StatusRunning])
}
