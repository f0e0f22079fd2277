// Package httpadapter serves the health, readiness, metrics and run control endpoints.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"
)

// RunTracker reports readiness and the outcome of the latest pipeline run.
type RunTracker interface {
	sharedobs.ReadinessChecker
	LastRun() (domain.RunSummary, bool)
}

// TriggerFunc requests a new pipeline run. It returns false when a run is already queued.
type TriggerFunc func() bool

// Server exposes health, readiness, metrics and run HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, GET /runs/latest and
// POST /runs routes. A nil trigger disables POST /runs.
func NewServer(addr string, runs RunTracker, trigger TriggerFunc, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(runs))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs/latest", handleLatestRun(runs))
	if trigger != nil {
		mux.HandleFunc("POST /runs", s.handleTrigger(trigger))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// runResponse is the JSON view of a RunSummary.
type runResponse struct {
	RunID           string    `json:"run_id"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	ReadingsLoaded  int       `json:"readings_loaded"`
	ReadingsCleaned int       `json:"readings_cleaned"`
	UnitsSegmented  int       `json:"units_segmented"`
	UnitsSkipped    int       `json:"units_skipped"`
	Error           string    `json:"error,omitempty"`
}

func handleLatestRun(runs RunTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sum, ok := runs.LastRun()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
			return
		}
		resp := runResponse{
			RunID:           sum.RunID,
			Status:          sum.Status,
			StartedAt:       sum.StartedAt.UTC(),
			FinishedAt:      sum.FinishedAt.UTC(),
			ReadingsLoaded:  sum.ReadingsLoaded,
			ReadingsCleaned: sum.ReadingsCleaned,
			UnitsSegmented:  sum.UnitsSegmented,
			UnitsSkipped:    sum.UnitsSkipped,
		}
		if sum.Err != nil {
			resp.Error = sum.Err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleTrigger(trigger TriggerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !trigger() {
			writeJSON(w, http.StatusConflict, map[string]string{"status": "a run is already queued"})
			return
		}
		s.logger.Info("pipeline run requested over http")
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
