// Package api exposes the dispatch core over HTTP: a thin net/http
// ServeMux adapted from the teacher's internal/api/server.go mux pattern,
// fronting the Scheduler and Ingester instead of an EngineController.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagewarden/dispatch/internal/model"
)

// SchedulerBackend is implemented by *scheduler.Scheduler.
type SchedulerBackend interface {
	NextJob(ctx context.Context, lockTTLSeconds int64, avgLinksPerPage int) (*model.Job, error)
	NextJobList(ctx context.Context, pageNumber, pageSize int) ([]model.Page, error)
	NextJobsCount(ctx context.Context) (int64, error)
}

// IngesterBackend is implemented by *ingest.Ingester.
type IngesterBackend interface {
	AddPage(ctx context.Context, rawURL string, score float64) (string, error)
}

// Server serves the dispatch HTTP surface: job assignment, bulk listing,
// page ingestion, health and metrics. The review/violation/report surface
// is out of scope.
type Server struct {
	mux       *http.ServeMux
	port      int
	logger    *slog.Logger
	scheduler SchedulerBackend
	ingester  IngesterBackend

	defaultLockExpirationSeconds int64
	defaultAvgLinksPerPage       int

	metricsEnabled  bool
	metricsPath     string
	metricsGatherer prometheus.Gatherer
}

// New constructs a Server. Either backend may be nil; routes backed by a
// nil backend respond 503. defaultLockExpirationSeconds/defaultAvgLinksPerPage
// are the values handleNextJob falls back to when a caller omits them
// (spec.md §6 — these stay per-call parameters, not config consumed by the
// scheduler itself).
func New(port int, sched SchedulerBackend, ing IngesterBackend, defaultLockExpirationSeconds int64, defaultAvgLinksPerPage int, metricsEnabled bool, metricsPath string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	s := &Server{
		mux:                          http.NewServeMux(),
		port:                         port,
		logger:                       logger.With("component", "api_server"),
		scheduler:                    sched,
		ingester:                     ing,
		defaultLockExpirationSeconds: defaultLockExpirationSeconds,
		defaultAvgLinksPerPage:       defaultAvgLinksPerPage,
		metricsEnabled:               metricsEnabled,
		metricsPath:                  metricsPath,
		metricsGatherer:              gatherer,
	}
	s.registerRoutes()
	return s
}

// Addr returns the listen address, e.g. ":8080".
func (s *Server) Addr() string { return fmt.Sprintf(":%d", s.port) }

// Handler returns the root mux, for use with httptest or a custom server.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving the dispatch HTTP surface.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API server starting", "addr", s.Addr())
	return http.ListenAndServe(s.Addr(), s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/jobs/next", s.handleNextJob)
	s.mux.HandleFunc("GET /v1/jobs", s.handleNextJobList)
	s.mux.HandleFunc("GET /v1/jobs/count", s.handleNextJobsCount)
	s.mux.HandleFunc("POST /v1/pages", s.handleAddPage)

	if s.metricsEnabled {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		if s.metricsGatherer != nil {
			s.mux.Handle(path, promhttp.HandlerFor(s.metricsGatherer, promhttp.HandlerOpts{}))
		} else {
			s.mux.Handle(path, promhttp.Handler())
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNextJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not initialized"})
		return
	}

	var body struct {
		LockExpirationSeconds int64 `json:"lock_expiration_seconds"`
		AvgLinksPerPage       int   `json:"avg_links_per_page"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.LockExpirationSeconds <= 0 {
		body.LockExpirationSeconds = s.defaultLockExpirationSeconds
	}
	if body.AvgLinksPerPage <= 0 {
		body.AvgLinksPerPage = s.defaultAvgLinksPerPage
	}

	job, err := s.scheduler.NextJob(r.Context(), body.LockExpirationSeconds, body.AvgLinksPerPage)
	if err != nil {
		if errors.Is(err, model.ErrStarved) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.logger.Error("next job failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleNextJobList(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not initialized"})
		return
	}
	page := intQuery(r, "page", 1)
	size := intQuery(r, "size", 0)

	pages, err := s.scheduler.NextJobList(r.Context(), page, size)
	if err != nil {
		s.logger.Error("next job list failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, pages)
}

func (s *Server) handleNextJobsCount(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not initialized"})
		return
	}
	n, err := s.scheduler.NextJobsCount(r.Context())
	if err != nil {
		s.logger.Error("next jobs count failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int64{"count": n})
}

func (s *Server) handleAddPage(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "ingester not initialized"})
		return
	}

	var body struct {
		URL   string  `json:"url"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	pageUUID, err := s.ingester.AddPage(r.Context(), body.URL, body.Score)
	if err != nil {
		var rejErr *model.RejectError
		if errors.As(err, &rejErr) {
			s.jsonResponse(w, http.StatusUnprocessableEntity, map[string]any{
				"reason":        rejErr.Reason,
				"url":           rejErr.URL,
				"details":       rejErr.Details,
				"effective_url": rejErr.EffectiveURL,
			})
			return
		}
		s.logger.Error("add page failed", "url", body.URL, "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]string{"uuid": pageUUID})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
