// Package api exposes the HTTP interface for the monitor service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lexwatch/dje-monitor/internal/config"
	"github.com/lexwatch/dje-monitor/internal/dispatcher"
	"github.com/lexwatch/dje-monitor/internal/metrics"
	"github.com/lexwatch/dje-monitor/internal/monitor"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router       chi.Router
	subjects     monitor.SubjectStore
	publications monitor.PublicationStore
	alerts       monitor.AlertStore
	stats        monitor.StatsStore
	queue        monitor.Queue
	dispatcher   *dispatcher.Dispatcher
	clock        monitor.Clock
	cfg          config.Config
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	subjects monitor.SubjectStore,
	publications monitor.PublicationStore,
	alerts monitor.AlertStore,
	stats monitor.StatsStore,
	queue monitor.Queue,
	dispatch *dispatcher.Dispatcher,
	clock monitor.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		subjects:     subjects,
		publications: publications,
		alerts:       alerts,
		stats:        stats,
		queue:        queue,
		dispatcher:   dispatch,
		clock:        clock,
		cfg:          cfg,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(s.apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/subjects", func(r chi.Router) {
			r.Post("/", s.registerSubject)
			r.Get("/", s.listSubjects)
			r.Route("/{subject_id}", func(r chi.Router) {
				r.Get("/", s.getSubject)
				r.Delete("/", s.deactivateSubject)
				r.Get("/publications", s.listSubjectPublications)
			})
		})
		r.Get("/publications", s.listRecentPublications)
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.listAlerts)
			r.Post("/read", s.markAlertsRead)
		})
		r.Route("/monitor", func(r chi.Router) {
			r.Post("/trigger", s.triggerCycle)
			r.Post("/scan", s.triggerScan)
			r.Post("/maintenance", s.triggerMaintenance)
		})
		r.Get("/status", s.status)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The stores answer a cheap query if they are reachable.
	if _, err := s.stats.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) registerSubject(w http.ResponseWriter, r *http.Request) {
	var reg monitor.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if reg.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if reg.IntervalHours < 0 {
		s.writeError(w, http.StatusBadRequest, "interval_hours must be >= 0")
		return
	}

	subject, created, err := s.subjects.Register(r.Context(), reg, s.clock.Now())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to register subject")
		return
	}

	// Baseline ingestion runs exactly once, at registration, so history
	// lands silently before routine polling starts alerting.
	if created {
		queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.dispatcher.SubmitFirstCheck(queueCtx, subject.ID); err != nil {
			s.logger.Error("first-check enqueue failed",
				zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{"subject": subject, "created": created})
}

func (s *Server) listSubjects(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	subjects, err := s.subjects.List(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list subjects")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (s *Server) getSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := s.subjects.Get(r.Context(), chi.URLParam(r, "subject_id"))
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "subject not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load subject")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"subject": subject})
}

func (s *Server) deactivateSubject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subject_id")
	err := s.subjects.Deactivate(r.Context(), id)
	if errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "subject not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to deactivate subject")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"subject_id": id, "status": "inactive"})
}

func (s *Server) listSubjectPublications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subject_id")
	if _, err := s.subjects.Get(r.Context(), id); errors.Is(err, monitor.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "subject not found")
		return
	}
	limit := queryInt(r, "limit", 50)
	pubs, err := s.publications.ListBySubject(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list publications")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"publications": pubs})
}

// listRecentPublications returns publications of active subjects inside
// the configured display window, newest first.
func (s *Server) listRecentPublications(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	since := s.clock.Now().Add(-s.cfg.DisplayWindow())
	pubs, err := s.publications.ListRecent(r.Context(), since, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list publications")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"publications": pubs})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subject_id")
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit := queryInt(r, "limit", 50)

	alerts, err := s.alerts.List(r.Context(), subjectID, unreadOnly, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) markAlertsRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	marked, err := s.alerts.MarkRead(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to mark alerts read")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}

func (s *Server) triggerCycle(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.TriggerCycle(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to submit cycle")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cycle submitted"})
}

func (s *Server) triggerScan(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.TriggerScan(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to submit scan")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan submitted"})
}

func (s *Server) triggerMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.TriggerExpire(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to submit maintenance")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "maintenance submitted"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	status, err := s.stats.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	status.QueueDepth = s.queue.Depth()
	s.writeJSON(w, http.StatusOK, status)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestIDFrom returns the request ID set by requestIDMiddleware, or ""
// when the middleware did not run.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTPRequest(r.Method, ww.status)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
