// Package server exposes the exporter's HTTP surface: /metrics, /health,
// and an informational landing page. Handlers only ever read the latest
// snapshot; no request triggers upstream calls.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariaops/aria-exporter/internal/collector"
)

// Info is the static process metadata shown on the landing page.
type Info struct {
	Name    string
	Version string
	Target  string
}

// Server wraps the HTTP listener.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New builds the server with its routes. The listener is not started until
// Run is called.
func New(port int, registry *prometheus.Registry, store *collector.Store, info Info, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if store.Latest() == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name":    info.Name,
			"version": info.Version,
			"target":  info.Target,
			"endpoints": []string{
				"/metrics", "/health",
			},
		})
	}).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run serves until Shutdown is called. http.ErrServerClosed is swallowed.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
