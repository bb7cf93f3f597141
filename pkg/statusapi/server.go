// Package statusapi exposes a minimal, unauthenticated HTTP surface
// alongside a running package engine: a liveness check and a Prometheus
// scrape endpoint. It shares the composition style of FreyjaDB's REST API
// router without any of the KV CRUD surface, since there is nothing left
// here for an API key or Swagger document to protect.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server hosts /healthz and /metrics for the duration of one package run.
type Server struct {
	metrics *Metrics
	ready   atomic.Bool
	http    *http.Server
}

// NewServer builds a Server bound to addr. The server does not start
// listening until Start is called.
func NewServer(addr string, metrics *Metrics) *Server {
	s := &Server{metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// MarkReady flips the liveness check to healthy. The knnworker CLI calls
// this once the descriptor has loaded and the run is about to start.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusServiceUnavailable
	body := map[string]string{"status": "starting"}
	if s.ready.Load() {
		status = http.StatusOK
		body["status"] = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Start runs the HTTP listener in the background. It returns immediately;
// listener errors (other than a clean Shutdown) are sent on the returned
// channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("status server: %w", err)
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown stops the listener gracefully, waiting for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
