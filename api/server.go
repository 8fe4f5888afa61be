// Package api exposes the read-only status surface over HTTP: health,
// Prometheus metrics, policy states, the audit tail and per-key window
// statistics. It never mutates state; all writes go through the bus.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ghostmesh/detect"
	"ghostmesh/policy"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string
	Port int
}

// Server is the status API server.
type Server struct {
	server  *http.Server
	service *detect.Service
	engine  *policy.Engine
	audit   *policy.Recorder
	logger  *zap.SugaredLogger
}

// NewServer creates the status API server.
func NewServer(cfg ServerConfig, service *detect.Service, engine *policy.Engine, audit *policy.Recorder, logger *zap.SugaredLogger) *Server {
	s := &Server{
		service: service,
		engine:  engine,
		audit:   audit,
		logger:  logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/policy/status", s.handlePolicyStatus).Methods(http.MethodGet)
	v1.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	v1.HandleFunc("/stats/{entity}/{signal}", s.handleStats).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Infow("Status API listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Status API server error", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePolicyStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": s.engine.Status(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := s.audit.Tail(limit)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entity, signal := vars["entity"], vars["signal"]

	snap, err := s.service.Stats(entity, signal)
	if err != nil {
		if errors.Is(err, detect.ErrInsufficientData) {
			s.writeError(w, http.StatusNotFound, "insufficient data for this key")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entityId": entity,
		"metric":   signal,
		"mean":     snap.Mean,
		"stddev":   snap.StdDev,
		"count":    snap.Count,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorw("Failed to encode API response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
