package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadscout/internal/infra/ai"
	"leadscout/internal/infra/storage"
	"leadscout/internal/infra/storage/postgres"
	"leadscout/internal/pipeline"
	"leadscout/internal/queue"
)

// Server exposes the HTTP control surface: search triggers, job
// status, queue depths, health, and metrics.
type Server struct {
	pipeline *pipeline.Pipeline
	router   *ai.Router
	db       *postgres.DB
	broker   *queue.RedisQueue
	srv      *http.Server
	log      *slog.Logger
}

// NewServer creates the HTTP server on the given port.
func NewServer(p *pipeline.Pipeline, aiRouter *ai.Router, db *postgres.DB, broker *queue.RedisQueue, port int, log *slog.Logger) *Server {
	s := &Server{
		pipeline: p,
		router:   aiRouter,
		db:       db,
		broker:   broker,
		log:      log.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/api/searches", s.handleTriggerSearch)
	r.Get("/api/jobs/{id}", s.handleJobStatus)
	r.Get("/api/queues", s.handleQueues)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type triggerRequest struct {
	TopicID  string `json:"topic_id"`
	MaxPages int    `json:"max_pages,omitempty"`
}

func (s *Server) handleTriggerSearch(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TopicID == "" {
		writeError(w, http.StatusBadRequest, "topic_id is required")
		return
	}

	status, err := s.pipeline.TriggerSearch(r.Context(), req.TopicID, req.MaxPages)
	if err != nil {
		var inProgress *queue.SearchInProgressError
		switch {
		case errors.As(err, &inProgress):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":  "search already in progress",
				"job_id": inProgress.JobID,
			})
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown topic")
		default:
			s.log.Error("search trigger failed", "topic", req.TopicID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to trigger search")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.pipeline.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "unknown job")
			return
		}
		s.log.Error("job status failed", "job", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	counts, err := s.pipeline.Counts(r.Context())
	if err != nil {
		s.log.Error("queue counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue counts")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type healthResponse struct {
	Status    string            `json:"status"`
	AICurrent string            `json:"ai_current,omitempty"`
	AISlots   []ai.SlotSnapshot `json:"ai_slots,omitempty"`
	Checks    map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{}}

	if s.db != nil {
		if err := s.db.Health(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["database"] = err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if s.broker != nil {
		if err := s.broker.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks["queue"] = "unreachable, fallback active"
		} else {
			resp.Checks["queue"] = "ok"
		}
	}
	if s.router != nil {
		current, slots := s.router.Snapshot()
		resp.AICurrent = current
		resp.AISlots = slots
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
