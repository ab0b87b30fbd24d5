// Package api exposes the local HTTP surface: a manual run trigger,
// health, metrics and the run log.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courtcast/internal/engine"
	"courtcast/internal/storage"
	logx "courtcast/pkg/logx"
)

const (
	// DefaultAddr binds to loopback: the run trigger is unauthenticated.
	DefaultAddr = "127.0.0.1:8090"

	runLogDefaultLimit = 50
	runLogMaxLimit     = 500
)

type Server struct {
	srv   *http.Server
	eng   *engine.Service
	store storage.Store
	log   logx.Logger
}

func New(addr string, eng *engine.Service, store storage.Store, log logx.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{eng: eng, store: store, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/runlog", s.handleRunLog)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	s.log.Info("http api listening", logx.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleRun triggers one scan invocation synchronously and returns its
// result. Concurrent triggers are safe: the claim step arbitrates.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	res, err := s.eng.Run(r.Context())
	if err != nil {
		s.log.Error("manual run failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRunLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	id := r.URL.Query().Get("schedule_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "schedule_id is required")
		return
	}
	limit := runLogDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > runLogMaxLimit {
			n = runLogMaxLimit
		}
		limit = n
	}
	entries, err := s.store.ListRunLog(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
