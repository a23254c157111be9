// Package api serves a read-only dashboard of run progress, run history
// and the buffered audit log.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"batch-delete/pkg/model"
	"batch-delete/pkg/stats"
	"batch-delete/pkg/store"
)

// AuditSource exposes the buffered audit entries.
type AuditSource interface {
	Entries() []model.AuditEntry
}

// Dashboard holds the latest progress and summary and serves them over HTTP.
type Dashboard struct {
	hub   *ProgressHub
	runs  store.RunStore
	audit AuditSource
	token string
	log   *slog.Logger

	mu       sync.RWMutex
	counters model.Counters
	summary  *stats.Summary
}

// NewDashboard builds a dashboard. runs and audit may be nil; token, when
// set, is required on every /api route.
func NewDashboard(runs store.RunStore, audit AuditSource, token string, logger *slog.Logger) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dashboard{
		hub:   NewProgressHub(logger),
		runs:  runs,
		audit: audit,
		token: token,
		log:   logger,
	}
}

// Publish records a counter snapshot and pushes it to subscribers. It has
// the shape of an engine observer.
func (d *Dashboard) Publish(c model.Counters) {
	d.mu.Lock()
	d.counters = c
	d.mu.Unlock()
	d.hub.Broadcast(WSMessage{Type: "progress", Payload: c})
}

// SetSummary records the summary of the last completed run.
func (d *Dashboard) SetSummary(s stats.Summary) {
	d.mu.Lock()
	d.summary = &s
	d.mu.Unlock()
	d.hub.Broadcast(WSMessage{Type: "summary", Payload: s})
}

// Hub exposes the websocket hub.
func (d *Dashboard) Hub() *ProgressHub { return d.hub }

// Handler returns a mux with every dashboard route registered.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	d.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func (d *Dashboard) RegisterRoutes(mux *http.ServeMux) {
	auth := authFunc(d.token)
	guard := func(method string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !auth(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if r.Method != method {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/progress", guard(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		d.mu.RLock()
		c := d.counters
		d.mu.RUnlock()
		writeJSON(w, http.StatusOK, c)
	}))

	mux.HandleFunc("/api/v1/stats", guard(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		d.mu.RLock()
		s := d.summary
		d.mu.RUnlock()
		if s == nil {
			http.Error(w, "no completed run", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}))

	mux.HandleFunc("/api/v1/runs", guard(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		if d.runs == nil {
			writeJSON(w, http.StatusOK, []model.RunRecord{})
			return
		}
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		runs, err := d.runs.ListRuns(limit)
		if err != nil {
			d.log.Error("list runs failed", "error", err)
			http.Error(w, "failed to list runs", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}))

	mux.HandleFunc("/api/v1/audit", guard(http.MethodGet, func(w http.ResponseWriter, _ *http.Request) {
		entries := []model.AuditEntry{}
		if d.audit != nil {
			entries = append(entries, d.audit.Entries()...)
		}
		writeJSON(w, http.StatusOK, entries)
	}))

	mux.HandleFunc("/api/v1/ws/progress", guard(http.MethodGet, d.hub.HandleProgress))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func authFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		if h == "" {
			// browsers cannot set headers on websocket upgrades
			h = r.URL.Query().Get("token")
		}
		return h == token
	}
}
