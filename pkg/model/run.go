package model

import "time"

// RunKind distinguishes an initial delete pass from a retry pass.
type RunKind string

const (
	RunDelete RunKind = "delete"
	RunRetry  RunKind = "retry"
)

// Counters is the live progress of a run. Queued includes items in the
// Retried(n) sub-state.
type Counters struct {
	RunID     string  `json:"runId"`
	Kind      RunKind `json:"kind"`
	Total     int     `json:"total"`
	Queued    int     `json:"queued"`
	Running   int     `json:"running"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Done      bool    `json:"done"`
}

// Processed is the number of items that reached a terminal state.
func (c Counters) Processed() int {
	return c.Succeeded + c.Failed
}

// Consistent reports whether the counters add up to the run total.
func (c Counters) Consistent() bool {
	return c.Queued+c.Running+c.Succeeded+c.Failed == c.Total
}

// RunRecord is a completed run as kept in run history.
type RunRecord struct {
	ID          string       `json:"id"`
	Kind        RunKind      `json:"kind"`
	Actor       string       `json:"actor"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Counters    Counters     `json:"counters"`
	Errors      []ErrorCount `json:"errors,omitempty"`
}

// ErrorCount is one row of an error-frequency table.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}
