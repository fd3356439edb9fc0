// Package server provides the HTTP API for page generation, editing and
// serving.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mateo/pagesmith/internal/job"
	"github.com/mateo/pagesmith/internal/patch"
	"github.com/mateo/pagesmith/internal/serve"
	"github.com/mateo/pagesmith/internal/store"
	"github.com/mateo/pagesmith/internal/types"
)

// JobRunner drives a job through the pipeline.
type JobRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) (*types.Job, error)
}

// Patcher applies a change request to a document.
type Patcher interface {
	ApplyChange(ctx context.Context, document, instruction string) (*patch.Result, error)
}

// Server is the HTTP API.
type Server struct {
	httpServer *http.Server
	jobs       *job.Service
	runner     JobRunner
	patcher    Patcher
	pages      *serve.Service
	store      store.Store
	validate   *validator.Validate
	logger     *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a server over its collaborators.
func New(cfg Config, jobs *job.Service, runner JobRunner, patcher Patcher, pages *serve.Service, st store.Store, logger *zap.Logger) *Server {
	s := &Server{
		jobs:     jobs,
		runner:   runner,
		patcher:  patcher,
		pages:    pages,
		store:    st,
		validate: validator.New(),
		logger:   logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(s.withCORS(s.Routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second, // full pipeline runs are synchronous
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	mux.HandleFunc("POST /api/jobs/{id}/run", s.handleRunJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("POST /api/documents/{id}/changes", s.handleApplyChange)

	mux.HandleFunc("GET /pages/{slug}", s.handleRenderPage)
	mux.HandleFunc("POST /pages/{slug}/leads", s.handleRecordLead)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start begins listening and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-stop
	s.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.store.Close()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.store.Name()})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	s.jsonResponse(w, HTTPStatus(err), map[string]string{"error": err.Error()})
}
