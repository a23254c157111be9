package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-delete/pkg/model"
	"batch-delete/pkg/stats"
	"batch-delete/pkg/store"
)

type staticAudit []model.AuditEntry

func (s staticAudit) Entries() []model.AuditEntry { return s }

func newTestDashboard(t *testing.T, token string) (*Dashboard, *httptest.Server) {
	runs := store.NewMemory()
	require.NoError(t, runs.SaveRun(model.RunRecord{ID: "run-1", Kind: model.RunDelete, StartedAt: time.Now()}))
	audit := staticAudit{{ID: "ABC123", Outcome: model.OutcomeSuccess}}
	d := NewDashboard(runs, audit, token, nil)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return d, srv
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestDashboard_Auth(t *testing.T) {
	_, srv := newTestDashboard(t, "s3cret")

	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/api/v1/progress", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/api/v1/progress", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/progress", "s3cret").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/api/v1/progress?token=s3cret", "").StatusCode)

	resp, err := http.Post(srv.URL+"/api/v1/runs?token=s3cret", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDashboard_ProgressAndStats(t *testing.T) {
	d, srv := newTestDashboard(t, "")

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/v1/stats", "").StatusCode)

	d.Publish(model.Counters{RunID: "run-1", Total: 3, Queued: 1, Succeeded: 2})
	var c model.Counters
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/api/v1/progress", "").Body).Decode(&c))
	assert.Equal(t, 2, c.Succeeded)

	d.SetSummary(stats.Summarize([]model.Item{{State: model.Succeeded}, {State: model.Failed, LastError: "x"}}))
	var s stats.Summary
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/api/v1/stats", "").Body).Decode(&s))
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Status[stats.StatusFailed])
}

func TestDashboard_RunsAndAudit(t *testing.T) {
	_, srv := newTestDashboard(t, "")

	var runs []model.RunRecord
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/api/v1/runs?limit=10", "").Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/v1/runs?limit=x", "").StatusCode)

	var entries []model.AuditEntry
	require.NoError(t, json.NewDecoder(get(t, srv.URL+"/api/v1/audit", "").Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "ABC123", entries[0].ID)
}

func TestProgressHub_PushesUpdates(t *testing.T) {
	d, srv := newTestDashboard(t, "tok")
	d.Publish(model.Counters{RunID: "r", Total: 2, Queued: 2})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/progress"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"X-Auth-Token": []string{"tok"}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg struct {
		Type    string         `json:"type"`
		Payload model.Counters `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "progress", msg.Type)
	assert.Equal(t, 2, msg.Payload.Queued)

	d.Publish(model.Counters{RunID: "r", Total: 2, Queued: 1, Running: 1})
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, 1, msg.Payload.Running)
	assert.Equal(t, 1, d.Hub().Subscribers())
}

func TestProgressHub_StalledSubscriberDoesNotBlock(t *testing.T) {
	d, srv := newTestDashboard(t, "")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/progress"

	stalled, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer stalled.Close()
	require.Eventually(t, func() bool { return d.Hub().Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	// never read from stalled; 64 KiB payloads fill the socket buffers quickly
	big := strings.Repeat("x", 64<<10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 400; i++ {
			d.Hub().Broadcast(WSMessage{Type: "progress", Payload: big})
			d.Publish(model.Counters{RunID: "r", Total: 400, Succeeded: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Publish blocked on a subscriber that does not read")
	}
	require.Eventually(t, func() bool { return d.Hub().Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)

	fresh, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer fresh.Close()
	require.NoError(t, fresh.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg struct {
		Type    string         `json:"type"`
		Payload model.Counters `json:"payload"`
	}
	require.NoError(t, fresh.ReadJSON(&msg))
	assert.Equal(t, 399, msg.Payload.Succeeded)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	d := NewDashboard(nil, nil, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, d.Handler(), nil, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerTLSConfig_PlainHTTP(t *testing.T) {
	cfg, err := ServerTLSConfig(TLSOptions{})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = ServerTLSConfig(TLSOptions{CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
