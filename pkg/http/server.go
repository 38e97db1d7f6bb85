package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "callai-worker/pkg/errors"
	"callai-worker/pkg/index"
	"callai-worker/pkg/metrics"
)

// Config holds the internal API server settings.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sane internal API defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8081",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// BrokerStatus reports queue connectivity for health checks.
type BrokerStatus interface {
	IsConnected() bool
}

// TaskStore resets finished tasks for another pipeline run.
type TaskStore interface {
	ReprocessTask(id uuid.UUID) error
}

// TaskPublisher re-enqueues a task notification.
type TaskPublisher interface {
	PublishTask(id uuid.UUID) error
}

// Server is the worker's internal API: transcript retrieval for the
// external CRUD surface, health and prometheus metrics.
type Server struct {
	config      *Config
	logger      *logrus.Logger
	httpServer  *http.Server
	mux         *http.ServeMux
	searchIndex index.SearchIndex
	broker      BrokerStatus
	tasks       TaskStore
	publisher   TaskPublisher
	startTime   time.Time
}

// NewServer creates the internal API server.
func NewServer(
	logger *logrus.Logger,
	config *Config,
	searchIndex index.SearchIndex,
	broker BrokerStatus,
	tasks TaskStore,
	publisher TaskPublisher,
) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	server := &Server{
		config:      config,
		logger:      logger,
		searchIndex: searchIndex,
		broker:      broker,
		tasks:       tasks,
		publisher:   publisher,
		startTime:   time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux

	mux.HandleFunc("GET /health", server.healthHandler)
	mux.HandleFunc("GET /api/v1/transcript/{id}", server.transcriptHandler)
	mux.HandleFunc("POST /api/v1/task/{id}/reprocess", server.reprocessHandler)

	if metrics.GetRegistry() != nil {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	}

	server.httpServer = &http.Server{
		Addr:         config.Address,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	go func() {
		s.logger.WithField("address", s.config.Address).Info("Internal API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Internal API server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down internal API server...")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the route handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// transcriptHandler returns the raw recognition payload indexed for a
// task. The external CRUD surface proxies this for task detail views.
func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid task id: %v", err))
		return
	}

	payload, err := s.searchIndex.LoadPayload(taskID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTranscriptNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("no transcript for task %s", taskID))
			return
		}
		s.logger.WithError(err).WithField("task_id", taskID).Error("Failed to load transcript")
		s.errorResponse(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// reprocessHandler resets a finished task to processing and re-enqueues
// its notification. A task still being processed is rejected.
func (s *Server) reprocessHandler(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid task id: %v", err))
		return
	}

	if err := s.tasks.ReprocessTask(taskID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTaskNotFound):
			s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("task %s not found", taskID))
		case errors.Is(err, apperrors.ErrTaskAlreadyProcessing):
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("task %s is already processing", taskID))
		default:
			s.logger.WithError(err).WithField("task_id", taskID).Error("Failed to reset task")
			s.errorResponse(w, http.StatusInternalServerError, "failed to reset task")
		}
		return
	}

	if err := s.publisher.PublishTask(taskID); err != nil {
		// The task is already marked processing; the caller has to retry
		// the publish, so surface the failure loudly.
		s.logger.WithError(err).WithField("task_id", taskID).Error("Failed to re-enqueue task")
		s.errorResponse(w, http.StatusBadGateway, "failed to re-enqueue task")
		return
	}

	s.logger.WithField("task_id", taskID).Info("Task queued for reprocessing")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"task_id": taskID.String(),
		"status":  "processing",
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	brokerConnected := s.broker != nil && s.broker.IsConnected()

	status := map[string]interface{}{
		"status":           "ok",
		"uptime":           time.Since(s.startTime).String(),
		"broker_connected": brokerConnected,
		"started_at":       s.startTime.Format(time.RFC3339),
	}

	code := http.StatusOK
	if !brokerConnected {
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
