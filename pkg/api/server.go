// Package api serves the live state of a running simulation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// DefaultRecordLimit caps GET /v1/records when no limit is given.
const DefaultRecordLimit = 100

// Server exposes progress, recorded actions and Prometheus metrics.
type Server struct {
	progress ProgressSource
	records  RecordSource
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a server on addr. records may be nil, in which case
// /v1/records and /v1/roles are not routed.
func NewServer(progress ProgressSource, records RecordSource, addr string, logger *slog.Logger) *Server {
	s := &Server{
		progress: progress,
		records:  records,
		logger:   logging.OrDefault(logger).With("component", "api"),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withLogging, s.withRecovery, withSecureHeaders)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/progress", s.handleProgress)
	if s.records != nil {
		r.Get("/v1/records", s.handleRecords)
		r.Get("/v1/roles", s.handleRoles)
	}
	return r
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Done: s.progress.Progress().Done})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.progress.Progress())
}

// handleRecords returns recorded actions in canonical order, filtered by
// the agent, role, scenario and success query parameters.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultRecordLimit
	if l := q.Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_limit", Reason: l})
			return
		}
		limit = val
	}
	var success *bool
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSON(w, r, http.StatusBadRequest, ErrorResponse{Error: "invalid_success", Reason: v})
			return
		}
		success = &b
	}

	agentID, role, scen := q.Get("agent"), q.Get("role"), q.Get("scenario")
	var out []telemetry.Record
	for _, rec := range telemetry.Canonical(s.records.Records()) {
		if agentID != "" && rec.AgentID != agentID {
			continue
		}
		if role != "" && rec.Role != role {
			continue
		}
		if scen != "" && rec.Scenario != scen {
			continue
		}
		if success != nil && rec.Success != *success {
			continue
		}
		out = append(out, rec)
	}

	resp := RecordsResponse{Total: len(out), Records: out}
	if len(out) > limit {
		resp.Records = out[:limit]
	}
	if resp.Records == nil {
		resp.Records = []telemetry.Record{}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleRoles(w http.ResponseWriter, r *http.Request) {
	type acc struct {
		actions int64
		last    time.Time
	}
	byRole := make(map[string]*acc)
	var total int64
	for _, rec := range s.records.Records() {
		a := byRole[rec.Role]
		if a == nil {
			a = &acc{}
			byRole[rec.Role] = a
		}
		a.actions++
		total++
		if rec.Timestamp.After(a.last) {
			a.last = rec.Timestamp
		}
	}

	out := make([]RoleSummary, 0, len(byRole))
	for role, a := range byRole {
		out = append(out, RoleSummary{
			Role:     role,
			Actions:  a.actions,
			Share:    float64(a.actions) / float64(total),
			LastSeen: a.last.Format(time.RFC3339),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "trace_id", getTraceID(r.Context()), "err", err)
	}
}

// withRecovery turns handler panics into 500s.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "err", err, "path", r.URL.Path)
				s.writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "internal_server_error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withLogging tags each request with a trace id and logs it on completion.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), traceIDKey, traceID))
		w.Header().Set("X-Trace-ID", traceID)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
