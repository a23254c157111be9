package engine

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-delete/pkg/fleet"
	"batch-delete/pkg/model"
)

// fakeAPI scripts fleet responses per serial and per uuid.
type fakeAPI struct {
	mu          sync.Mutex
	computers   map[string]model.Computer
	lookupCode  int
	lookupErr   error
	deleteCodes map[string][]int // consumed in order, last one repeats
	deleteErr   error
	onDelete    func(uuid string)
	deleted     []string
}

func (f *fakeAPI) Authenticate(context.Context) (fleet.Token, int, error) {
	return validToken(), http.StatusOK, nil
}

func (f *fakeAPI) FindBySerial(_ context.Context, _ fleet.Token, serial string) ([]model.Computer, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, 0, f.lookupErr
	}
	code := f.lookupCode
	if code == 0 {
		code = http.StatusOK
	}
	c, ok := f.computers[serial]
	if !ok || code != http.StatusOK {
		return nil, code, nil
	}
	return []model.Computer{c}, code, nil
}

func (f *fakeAPI) DeleteByID(_ context.Context, _ fleet.Token, uuid string) (int, error) {
	f.mu.Lock()
	f.deleted = append(f.deleted, uuid)
	hook := f.onDelete
	code := http.StatusOK
	if codes := f.deleteCodes[uuid]; len(codes) > 0 {
		code = codes[0]
		if len(codes) > 1 {
			f.deleteCodes[uuid] = codes[1:]
		}
	}
	err := f.deleteErr
	f.mu.Unlock()
	if hook != nil {
		hook(uuid)
	}
	if err != nil {
		return 0, err
	}
	return code, nil
}

func (f *fakeAPI) ListRecent(context.Context, fleet.Token, time.Time) ([]model.Computer, error) {
	return nil, nil
}

type auditRecorder struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (a *auditRecorder) Append(e model.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func validToken() fleet.Token {
	return fleet.Token{AccessToken: "tok", IssuedAt: time.Now()}
}

func items(serials ...string) []*model.Item {
	out := make([]*model.Item, len(serials))
	for i, s := range serials {
		out[i] = &model.Item{ID: s, Source: model.SourceCSV, Selected: true}
	}
	return out
}

type harness struct {
	api      *fakeAPI
	audit    *auditRecorder
	sleeper  *sleepRecorder
	engine   *Engine
	counters []model.Counters
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	h := &harness{api: api, audit: &auditRecorder{}, sleeper: &sleepRecorder{}}
	h.engine = New(api, Options{
		Actor:   "ops",
		Audit:   h.audit,
		Sleep:   h.sleeper.sleep,
		Observe: func(c model.Counters) { h.counters = append(h.counters, c) },
	})
	return h
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, Backoff(0))
	assert.Equal(t, 500*time.Millisecond, Backoff(1))
	assert.Equal(t, time.Second, Backoff(2))
	assert.Equal(t, 2*time.Second, Backoff(3))
	assert.Equal(t, 4*time.Second, Backoff(4))
	assert.Equal(t, 8*time.Second, Backoff(5))
	assert.Equal(t, 8*time.Second, Backoff(1000))

	prev := time.Duration(0)
	for n := 1; n <= 40; n++ {
		d := Backoff(n)
		assert.GreaterOrEqual(t, d, prev, "n=%d", n)
		assert.LessOrEqual(t, d, BackoffCap, "n=%d", n)
		prev = d
	}
}

func TestBeginRun_AuthenticationFailure(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	work := items("A1", "B2")

	_, err := h.engine.Delete(context.Background(), fleet.Token{}, work, Selected)
	require.ErrorIs(t, err, ErrAuthentication)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)

	for _, it := range work {
		assert.Equal(t, model.Pending, it.State)
	}
	assert.Empty(t, h.counters)
	assert.Empty(t, h.audit.entries)
	assert.Empty(t, h.api.deleted)
	assert.Nil(t, h.engine.Current())
}

func TestBeginRun_ExpiredToken(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	tok := fleet.Token{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}
	_, err := h.engine.BeginRun(tok, model.RunDelete, items("A1"), Selected)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestDelete_Success(t *testing.T) {
	h := newHarness(t, &fakeAPI{computers: map[string]model.Computer{
		"A1": {UUID: "u-1", Serial: "A1", HostName: "mac-1", Checkin: "2024-01-02T03:04:05Z"},
	}})
	work := items("A1")

	run, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)

	it := work[0]
	assert.Equal(t, model.Succeeded, it.State)
	assert.Equal(t, "u-1", it.RemoteUUID)
	assert.Equal(t, "mac-1", it.HostName)
	require.NotNil(t, it.LastCheckin)
	assert.Empty(t, it.LastError)

	c := run.Counters()
	assert.Equal(t, model.Counters{RunID: run.ID, Kind: model.RunDelete, Total: 1, Succeeded: 1, Done: true}, c)
	require.NotNil(t, run.CompletedAt())

	require.Len(t, h.audit.entries, 1)
	e := h.audit.entries[0]
	assert.Equal(t, model.OutcomeSuccess, e.Outcome)
	assert.Equal(t, "ops", e.Actor)
	assert.Equal(t, model.SourceCSV, e.Source)
	assert.Equal(t, "u-1", e.RemoteUUID)
	require.NotNil(t, e.ResponseCode)
	assert.Equal(t, http.StatusOK, *e.ResponseCode)
}

func TestDelete_LookupMiss(t *testing.T) {
	h := newHarness(t, &fakeAPI{})
	work := items("NOPE")

	_, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)

	it := work[0]
	assert.Equal(t, model.Failed, it.State)
	assert.Contains(t, it.LastError, "Lookup failed")
	assert.Empty(t, h.api.deleted, "no delete without a resolved uuid")

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, model.OutcomeFailure, h.audit.entries[0].Outcome)
	assert.Equal(t, it.LastError, h.audit.entries[0].Error)
}

func TestDelete_LookupErrors(t *testing.T) {
	t.Run("no response", func(t *testing.T) {
		h := newHarness(t, &fakeAPI{lookupErr: errors.New("dial tcp: refused")})
		work := items("A1")
		_, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
		require.NoError(t, err)
		assert.Equal(t, "Lookup failed (no response)", work[0].LastError)
		assert.Nil(t, h.audit.entries[0].ResponseCode)
	})
	t.Run("http status", func(t *testing.T) {
		h := newHarness(t, &fakeAPI{lookupCode: http.StatusForbidden})
		work := items("A1")
		_, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
		require.NoError(t, err)
		assert.Equal(t, "Lookup failed (HTTP 403)", work[0].LastError)
		require.NotNil(t, h.audit.entries[0].ResponseCode)
		assert.Equal(t, http.StatusForbidden, *h.audit.entries[0].ResponseCode)
	})
}

func TestDelete_HTTPAndNetworkFailures(t *testing.T) {
	h := newHarness(t, &fakeAPI{
		computers: map[string]model.Computer{
			"A1": {UUID: "u-1", Serial: "A1"},
		},
		deleteCodes: map[string][]int{"u-1": {http.StatusInternalServerError}},
	})
	work := items("A1")
	_, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)
	assert.Equal(t, "HTTP 500 while deleting", work[0].LastError)

	h2 := newHarness(t, &fakeAPI{
		computers: map[string]model.Computer{"A1": {UUID: "u-1", Serial: "A1"}},
		deleteErr: errors.New("timeout"),
	})
	work = items("A1")
	_, err = h2.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)
	assert.Equal(t, model.Failed, work[0].State)
	assert.Equal(t, "Network error while deleting", work[0].LastError)
	assert.Nil(t, h2.audit.entries[0].ResponseCode)
}

func TestDelete_SkipsUnselected(t *testing.T) {
	h := newHarness(t, &fakeAPI{computers: map[string]model.Computer{
		"A1": {UUID: "u-1"}, "B2": {UUID: "u-2"},
	}})
	work := items("A1", "B2")
	work[1].Selected = false

	run, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Counters().Total)
	assert.Equal(t, model.Pending, work[1].State)
	assert.Equal(t, []string{"u-1"}, h.api.deleted)
}

func TestRetry_RecoversTransientFailure(t *testing.T) {
	h := newHarness(t, &fakeAPI{
		computers:   map[string]model.Computer{"A1": {UUID: "u-1", Serial: "A1"}},
		deleteCodes: map[string][]int{"u-1": {http.StatusInternalServerError, http.StatusOK}},
	})
	work := items("A1")
	ctx := context.Background()

	_, err := h.engine.Delete(ctx, validToken(), work, Selected)
	require.NoError(t, err)
	require.Equal(t, model.Failed, work[0].State)

	run, err := h.engine.RetryFailed(ctx, validToken(), work)
	require.NoError(t, err)

	it := work[0]
	assert.Equal(t, model.Succeeded, it.State)
	assert.Equal(t, 1, it.RetryCount)
	assert.Empty(t, it.LastError)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, h.sleeper.waits)
	assert.Equal(t, model.RunRetry, run.Kind)

	require.Len(t, h.audit.entries, 2)
	assert.Equal(t, model.OutcomeFailure, h.audit.entries[0].Outcome)
	assert.Equal(t, model.OutcomeSuccess, h.audit.entries[1].Outcome)
}

func TestRetry_ShowsRetriedState(t *testing.T) {
	api := &fakeAPI{
		computers:   map[string]model.Computer{"A1": {UUID: "u-1"}},
		deleteCodes: map[string][]int{"u-1": {http.StatusBadGateway}},
	}
	h := newHarness(t, api)
	work := items("A1")
	ctx := context.Background()
	_, err := h.engine.Delete(ctx, validToken(), work, Selected)
	require.NoError(t, err)

	var seen []model.State
	h.engine.sleep = func(ctx context.Context, d time.Duration) error {
		seen = append(seen, work[0].State)
		return nil
	}
	for round := 1; round <= 3; round++ {
		_, err := h.engine.RetryFailed(ctx, validToken(), work)
		require.NoError(t, err)
	}
	assert.Equal(t, []model.State{model.Retried(1), model.Retried(2), model.Retried(3)}, seen)
	assert.Equal(t, "Retried (3)", seen[2].String())
	assert.Equal(t, 3, work[0].RetryCount)
	assert.Equal(t, model.Failed, work[0].State)
}

func TestRetry_TouchesOnlyFailed(t *testing.T) {
	api := &fakeAPI{computers: map[string]model.Computer{
		"A1": {UUID: "u-1"}, "B2": {UUID: "u-2"}, "C3": {UUID: "u-3"},
	}}
	h := newHarness(t, api)
	work := items("A1", "B2", "C3")
	work[0].State = model.Succeeded
	work[1].State = model.Failed
	work[1].RemoteUUID = "u-2"
	work[2].State = model.Pending

	run, err := h.engine.RetryFailed(context.Background(), validToken(), work)
	require.NoError(t, err)

	c := run.Counters()
	assert.Equal(t, 1, c.Total)
	assert.Equal(t, 1, c.Succeeded)
	assert.Equal(t, model.Succeeded, work[0].State)
	assert.Equal(t, 0, work[0].RetryCount)
	assert.Equal(t, model.Pending, work[2].State)
	assert.Equal(t, []string{"u-2"}, api.deleted)
}

func TestDelete_CancellationLeavesRemainderQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{
		computers: map[string]model.Computer{"A1": {UUID: "u-1"}, "B2": {UUID: "u-2"}, "C3": {UUID: "u-3"}},
		onDelete:  func(string) { cancel() },
	}
	h := newHarness(t, api)
	work := items("A1", "B2", "C3")

	run, err := h.engine.Delete(ctx, validToken(), work, Selected)
	require.NoError(t, err)

	assert.Equal(t, model.Succeeded, work[0].State, "in-flight call completes")
	assert.Equal(t, model.Queued, work[1].State)
	assert.Equal(t, model.Queued, work[2].State)
	c := run.Counters()
	assert.Equal(t, 2, c.Queued)
	assert.True(t, c.Done)
	assert.True(t, c.Consistent())

	api.onDelete = nil
	resumed, err := h.engine.Delete(context.Background(), validToken(), work, Interrupted)
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.Counters().Succeeded)
	assert.Equal(t, []string{"u-1", "u-2", "u-3"}, api.deleted)
}

func TestBeginRun_OneRunAtATime(t *testing.T) {
	api := &fakeAPI{computers: map[string]model.Computer{"A1": {UUID: "u-1"}}}
	h := newHarness(t, api)
	var nested error
	api.onDelete = func(string) {
		_, nested = h.engine.BeginRun(validToken(), model.RunDelete, items("B2"), Selected)
	}
	_, err := h.engine.Delete(context.Background(), validToken(), items("A1"), Selected)
	require.NoError(t, err)
	assert.ErrorIs(t, nested, ErrRunInProgress)

	api.onDelete = nil
	_, err = h.engine.Delete(context.Background(), validToken(), items("A1"), Selected)
	assert.NoError(t, err, "engine is released after a run")
}

func TestCounters_ConsistentAfterEveryTransition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	codes := []int{http.StatusOK, http.StatusOK, http.StatusInternalServerError, http.StatusNotFound}

	for round := 0; round < 20; round++ {
		api := &fakeAPI{computers: map[string]model.Computer{}, deleteCodes: map[string][]int{}}
		n := 1 + rng.Intn(15)
		serials := make([]string, n)
		for i := range serials {
			serials[i] = string(rune('A'+i)) + "X"
			if rng.Intn(5) > 0 {
				uuid := "u-" + serials[i]
				api.computers[serials[i]] = model.Computer{UUID: uuid}
				seq := make([]int, 4)
				for j := range seq {
					seq[j] = codes[rng.Intn(len(codes))]
				}
				api.deleteCodes[uuid] = seq
			}
		}
		h := newHarness(t, api)
		work := items(serials...)
		for _, it := range work {
			it.Selected = rng.Intn(4) > 0
		}

		ctx := context.Background()
		_, err := h.engine.Delete(ctx, validToken(), work, Selected)
		require.NoError(t, err)
		for r := 0; r < 3; r++ {
			_, err = h.engine.RetryFailed(ctx, validToken(), work)
			require.NoError(t, err)
		}

		require.NotEmpty(t, h.counters)
		for i, c := range h.counters {
			require.True(t, c.Consistent(), "round %d snapshot %d: %+v", round, i, c)
			require.LessOrEqual(t, c.Running, 1, "one item in flight")
		}
	}
}

func TestBeginRun_StepwiseRunCompletes(t *testing.T) {
	api := &fakeAPI{computers: map[string]model.Computer{"A1": {UUID: "u-1"}, "B2": {UUID: "u-2"}}}
	h := newHarness(t, api)
	work := items("A1", "B2")

	run, err := h.engine.BeginRun(validToken(), model.RunDelete, work, Selected)
	require.NoError(t, err)
	out := h.engine.ProcessItem(context.Background(), run, work[0], validToken())
	require.NoError(t, out.Err)
	assert.Equal(t, model.Succeeded, out.State)
	assert.Nil(t, run.CompletedAt())

	c := h.engine.Complete(run)
	assert.True(t, c.Done)
	assert.Equal(t, 1, c.Succeeded)
	assert.Equal(t, 1, c.Queued, "unprocessed item stays queued")
	require.NotNil(t, run.CompletedAt())

	published := len(h.counters)
	again := h.engine.Complete(run)
	assert.Equal(t, c, again)
	assert.Len(t, h.counters, published, "second Complete publishes nothing")

	_, err = h.engine.Delete(context.Background(), validToken(), work, Interrupted)
	require.NoError(t, err, "engine is released by Complete")
	assert.Equal(t, model.Succeeded, work[1].State)
}

func TestProcessItem_RefusesItemsOutsideTheQueue(t *testing.T) {
	api := &fakeAPI{computers: map[string]model.Computer{"A1": {UUID: "u-1"}, "Z9": {UUID: "u-9"}}}
	h := newHarness(t, api)
	work := items("A1")
	ctx := context.Background()

	run, err := h.engine.BeginRun(validToken(), model.RunDelete, work, Selected)
	require.NoError(t, err)

	foreign := items("Z9")[0]
	out := h.engine.ProcessItem(ctx, run, foreign, validToken())
	require.ErrorIs(t, out.Err, ErrNotInRun)
	assert.Equal(t, model.Pending, foreign.State)
	assert.True(t, run.Counters().Consistent())

	require.NoError(t, h.engine.ProcessItem(ctx, run, work[0], validToken()).Err)
	out = h.engine.ProcessItem(ctx, run, work[0], validToken())
	require.ErrorIs(t, out.Err, ErrNotQueued)
	assert.Equal(t, model.Succeeded, out.State)

	h.engine.Complete(run)
	work[0].State = model.Queued
	out = h.engine.ProcessItem(ctx, run, work[0], validToken())
	require.ErrorIs(t, out.Err, ErrRunCompleted)

	assert.Equal(t, []string{"u-1"}, api.deleted)
	for i, c := range h.counters {
		require.True(t, c.Consistent(), "snapshot %d: %+v", i, c)
	}
}

func TestRetry_CancelDuringBackoffSendsNothing(t *testing.T) {
	api := &fakeAPI{
		computers:   map[string]model.Computer{"A1": {UUID: "u-1"}},
		deleteCodes: map[string][]int{"u-1": {http.StatusInternalServerError}},
	}
	h := newHarness(t, api)
	work := items("A1")
	_, err := h.engine.Delete(context.Background(), validToken(), work, Selected)
	require.NoError(t, err)

	h.engine.sleep = func(context.Context, time.Duration) error { return context.Canceled }
	run, err := h.engine.RetryFailed(context.Background(), validToken(), work)
	require.NoError(t, err)

	it := work[0]
	assert.Equal(t, model.Failed, it.State)
	assert.Equal(t, 0, it.RetryCount)
	assert.Equal(t, "HTTP 500 while deleting", it.LastError)
	assert.Equal(t, []string{"u-1"}, api.deleted, "no retry request sent")

	c := run.Counters()
	assert.Equal(t, 1, c.Failed)
	assert.True(t, c.Consistent())
}
