// Package poolapi exposes read-only HTTP introspection for a pool:
// aggregate stats, per-slot status, and Prometheus metrics. This core
// manages exactly one pool, not a registry of tenants, so there is no
// CRUD surface here, only read-only status.
package poolapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbbouncer/mysqlcore/internal/pool"
)

// Server is the pool's introspection HTTP server.
type Server struct {
	pool       *pool.Pool
	httpServer *http.Server
	startTime  time.Time
}

// New creates a Server over p. Call Start to begin listening.
func New(p *pool.Pool) *Server {
	return &Server{pool: p, startTime: time.Now()}
}

// Start binds the server on port and serves in the background.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()
	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/stats/nodes", s.nodesHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("poolapi: listening", "addr", addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("poolapi: server error", "err", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

func (s *Server) nodesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Nodes())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
