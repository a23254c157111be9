// Package engine drives batch delete runs: it walks the selected items one
// at a time, resolves serials to remote UUIDs, deletes them, records the
// outcome on each item and in the audit log, and retries failures with
// exponential backoff.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"batch-delete/pkg/fleet"
	"batch-delete/pkg/model"
)

// AuditSink receives one entry per terminal transition.
type AuditSink interface {
	Append(model.AuditEntry) error
}

// Options configures an Engine. Zero values fall back to sensible defaults.
type Options struct {
	Actor   string
	Audit   AuditSink
	Observe Observer
	Sleep   Sleeper
	Now     func() time.Time
	Logger  *slog.Logger
}

// Engine runs batch operations against the fleet API. At most one run is
// active at a time.
type Engine struct {
	api     fleet.API
	actor   string
	audit   AuditSink
	observe Observer
	sleep   Sleeper
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	current *Run
	busy    bool
}

func New(api fleet.API, opts Options) *Engine {
	e := &Engine{
		api:     api,
		actor:   opts.Actor,
		audit:   opts.Audit,
		observe: opts.Observe,
		sleep:   opts.Sleep,
		now:     opts.Now,
		log:     opts.Logger,
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Outcome is the result of processing one item.
type Outcome struct {
	Serial string
	State  model.State
	Status int // 0 when no response was received
	Err    error
}

// Selected matches items the user has ticked.
func Selected(it *model.Item) bool { return it.Selected }

// FailedOnly matches selected items whose last pass failed.
func FailedOnly(it *model.Item) bool { return it.Selected && it.State.Kind == model.StateFailed }

// Interrupted matches selected items a cancelled run left queued.
func Interrupted(it *model.Item) bool { return it.Selected && it.State.Kind == model.StateQueued }

// Authenticate obtains a token, mapping every failure to *AuthenticationError.
func (e *Engine) Authenticate(ctx context.Context) (fleet.Token, error) {
	tok, status, err := e.api.Authenticate(ctx)
	if err != nil || tok.AccessToken == "" {
		return fleet.Token{}, &AuthenticationError{Status: status, Err: err}
	}
	return tok, nil
}

// Current returns the active or most recently finished run, if any.
func (e *Engine) Current() *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// BeginRun starts a run over the items matching pred. Nothing is mutated
// when the token is missing or expired, or when another run is active.
// The caller feeds items to ProcessItem and must end the run with Complete.
// Delete and RetryFailed do all of this.
func (e *Engine) BeginRun(token fleet.Token, kind model.RunKind, items []*model.Item, pred func(*model.Item) bool) (*Run, error) {
	if !token.Valid(e.now()) {
		return nil, &AuthenticationError{}
	}
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	var picked []*model.Item
	for _, it := range items {
		if pred == nil || pred(it) {
			picked = append(picked, it)
		}
	}
	run := newRun(uuid.NewString(), kind, picked, e.now(), e.observe)
	e.current = run
	e.busy = true
	e.mu.Unlock()

	run.publish(run.Counters())
	e.log.Info("run started", "run", run.ID, "kind", kind, "items", len(picked))
	return run, nil
}

// Complete ends a run started with BeginRun and frees the engine for the
// next one. Items still queued stay queued. Calling it again is a no-op.
func (e *Engine) Complete(run *Run) model.Counters {
	c, first := run.complete(e.now())
	if !first {
		return c
	}
	e.mu.Lock()
	if e.current == run {
		e.busy = false
	}
	e.mu.Unlock()
	e.log.Info("run finished", "run", run.ID, "kind", run.Kind,
		"succeeded", c.Succeeded, "failed", c.Failed, "queued", c.Queued)
	return c
}

// Delete runs a delete pass over the items matching pred. Cancelling ctx
// stops the run between items; items not yet started stay queued.
func (e *Engine) Delete(ctx context.Context, token fleet.Token, items []*model.Item, pred func(*model.Item) bool) (*Run, error) {
	run, err := e.BeginRun(token, model.RunDelete, items, pred)
	if err != nil {
		return nil, err
	}
	defer e.Complete(run)
	for _, it := range run.items {
		if ctx.Err() != nil {
			e.log.Warn("run cancelled", "run", run.ID)
			break
		}
		e.ProcessItem(ctx, run, it, token)
	}
	return run, nil
}

// RetryFailed re-runs every selected item that is currently failed, waiting
// Backoff(retryCount) before each attempt.
func (e *Engine) RetryFailed(ctx context.Context, token fleet.Token, items []*model.Item) (*Run, error) {
	run, err := e.BeginRun(token, model.RunRetry, items, FailedOnly)
	if err != nil {
		return nil, err
	}
	defer e.Complete(run)
	for _, it := range run.items {
		if ctx.Err() != nil {
			e.log.Warn("run cancelled", "run", run.ID)
			break
		}
		n := it.RetryCount + 1
		run.transition(it, model.Retried(n), nil)
		if err := e.sleep(ctx, Backoff(n)); err != nil {
			// no request was sent, so the item is still just failed
			run.transition(it, model.Failed, nil)
			e.log.Warn("run cancelled during backoff", "run", run.ID, "serial", it.ID)
			break
		}
		run.update(it, func(it *model.Item) { it.RetryCount = n })
		e.ProcessItem(ctx, run, it, token)
	}
	return run, nil
}

// ProcessItem takes one queued item of run through lookup and delete. Items
// that are not queued members of an open run are refused with an error
// outcome and left untouched. Remote calls are not aborted by cancelling
// ctx; cancellation is honoured by the caller between items.
func (e *Engine) ProcessItem(ctx context.Context, run *Run, it *model.Item, token fleet.Token) Outcome {
	if err := run.start(it); err != nil {
		return Outcome{Serial: it.ID, State: it.State, Err: err}
	}
	callCtx := context.WithoutCancel(ctx)

	if it.RemoteUUID == "" {
		matches, status, err := e.api.FindBySerial(callCtx, token, it.ID)
		switch {
		case err != nil:
			return e.fail(run, it, 0, &LookupError{Serial: it.ID, Err: err})
		case status != http.StatusOK:
			return e.fail(run, it, status, &LookupError{Serial: it.ID, Status: status})
		case len(matches) == 0:
			return e.fail(run, it, status, &LookupError{Serial: it.ID, Status: status, NotFound: true})
		}
		run.update(it, func(it *model.Item) { it.Resolve(matches[0]) })
	}

	status, err := e.api.DeleteByID(callCtx, token, it.RemoteUUID)
	if err != nil {
		return e.fail(run, it, 0, &DeleteError{Err: err})
	}
	if status != http.StatusOK {
		return e.fail(run, it, status, &DeleteError{Status: status})
	}

	run.transition(it, model.Succeeded, func(it *model.Item) { it.LastError = "" })
	e.record(it, model.OutcomeSuccess, status, "")
	e.log.Info("deleted", "serial", it.ID, "uuid", it.RemoteUUID, "host", it.HostName)
	return Outcome{Serial: it.ID, State: model.Succeeded, Status: status}
}

func (e *Engine) fail(run *Run, it *model.Item, status int, err error) Outcome {
	msg := err.Error()
	run.transition(it, model.Failed, func(it *model.Item) { it.LastError = msg })
	e.record(it, model.OutcomeFailure, status, msg)
	e.log.Warn("delete failed", "serial", it.ID, "status", status, "error", msg)
	return Outcome{Serial: it.ID, State: model.Failed, Status: status, Err: err}
}

func (e *Engine) record(it *model.Item, outcome string, status int, msg string) {
	if e.audit == nil {
		return
	}
	source := it.Source
	if source == "" {
		source = model.SourceFetch
	}
	entry := model.AuditEntry{
		Timestamp:  fleet.FormatTimestamp(e.now()),
		Actor:      e.actor,
		Action:     model.ActionDelete,
		Source:     source,
		ID:         it.ID,
		RemoteUUID: it.RemoteUUID,
		HostName:   it.HostName,
		Outcome:    outcome,
		Error:      msg,
	}
	if status != 0 {
		code := status
		entry.ResponseCode = &code
	}
	if err := e.audit.Append(entry); err != nil {
		e.log.Error("audit append failed", "serial", it.ID, "error", err)
	}
}
