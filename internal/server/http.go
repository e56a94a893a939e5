package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/morezero/sdk-bridge/pkg/db"
	"github.com/morezero/sdk-bridge/pkg/metrics"
	"github.com/morezero/sdk-bridge/pkg/semver"
)

const httpLogPrefix = "server:http"

// defaultStatsWindow is the window of /traffic/stats when no since is given.
const defaultStatsWindow = 24 * time.Hour

// HealthChecks are the individual health probes.
type HealthChecks struct {
	Comms   bool  `json:"comms"`
	Runtime bool  `json:"runtime"`
	Journal *bool `json:"journal,omitempty"`
}

// HealthOutput is the body of /health.
type HealthOutput struct {
	Status         string                `json:"status"`
	Timestamp      string                `json:"timestamp"`
	Checks         HealthChecks          `json:"checks"`
	RuntimeVersion string                `json:"runtimeVersion,omitempty"`
	Compatibility  *semver.Compatibility `json:"compatibility,omitempty"`
	Targets        int                   `json:"targets"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/traffic", s.handleTrafficList())
	mux.HandleFunc("/traffic/stats", s.handleTrafficStats())
	mux.HandleFunc("/traffic/", s.handleTrafficGet())
	return mux
}

// health runs every probe under ctx.
func (s *Server) health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Compatibility: s.compat,
	}
	if s.commsConnected != nil {
		h.Checks.Comms = s.commsConnected()
	}
	if s.prober != nil {
		v, err := s.prober.RuntimeVersion(ctx)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - runtime probe failed: %v", httpLogPrefix, err))
		} else {
			h.Checks.Runtime = true
			h.RuntimeVersion = v
		}
	}
	if s.pingJournal != nil {
		ok := s.pingJournal(ctx) == nil
		h.Checks.Journal = &ok
	}
	if s.targets != nil {
		h.Targets = s.targets()
	}

	h.Status = "healthy"
	if !h.Checks.Comms || !h.Checks.Runtime || (h.Checks.Journal != nil && !*h.Checks.Journal) {
		h.Status = "unhealthy"
	}
	return h
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.health(ctx)
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, h)
	}
}

func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleTrafficList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireJournal(w) {
			return
		}
		f, err := parseTrafficFilter(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		records, err := s.journal.ListTraffic(ctx, f)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - list traffic: %v", httpLogPrefix, err))
			writeError(w, http.StatusInternalServerError, "failed to list traffic")
			return
		}
		if records == nil {
			records = []db.TrafficRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"traffic": records, "count": len(records)})
	}
}

func (s *Server) handleTrafficStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireJournal(w) {
			return
		}
		since := time.Now().Add(-defaultStatsWindow)
		if v := r.URL.Query().Get("since"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "since must be RFC 3339")
				return
			}
			since = t
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		counts, err := s.journal.CountByOutcome(ctx, since)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - count traffic: %v", httpLogPrefix, err))
			writeError(w, http.StatusInternalServerError, "failed to count traffic")
			return
		}
		if counts == nil {
			counts = []db.OutcomeCount{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"since": since.UTC().Format(time.RFC3339), "outcomes": counts})
	}
}

func (s *Server) handleTrafficGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.requireJournal(w) {
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/traffic/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		rec, err := s.journal.GetTraffic(ctx, id)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - get traffic %s: %v", httpLogPrefix, id, err))
			writeError(w, http.StatusInternalServerError, "failed to load traffic")
			return
		}
		if rec == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "traffic journal is disabled")
		return false
	}
	return true
}

// parseTrafficFilter reads module, operation, outcome, handle, since and
// limit from the query string.
func parseTrafficFilter(r *http.Request) (db.TrafficFilter, error) {
	q := r.URL.Query()
	f := db.TrafficFilter{
		Module:    q.Get("module"),
		Operation: q.Get("operation"),
		Outcome:   q.Get("outcome"),
	}
	if v := q.Get("handle"); v != "" {
		h, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("handle must be an integer")
		}
		f.Handle = &h
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be RFC 3339")
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		f.Limit = n
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - encode response: %v", httpLogPrefix, err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
