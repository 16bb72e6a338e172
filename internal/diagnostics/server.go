package diagnostics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 3 * time.Second

// Server exposes /healthz and /metrics over go-chi/chi, the way the
// teacher's lp handler mounts its long-polling route — grounded on DMRHub's
// metrics.CreateMetricsServer for the server lifecycle shape.
type Server struct {
	httpServer *http.Server
}

// NewServer builds the diagnostics HTTP server bound to addr (":<port>").
func NewServer(addr string) *Server {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	return &Server{httpServer: &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: readHeaderTimeout}}
}

// Serve blocks until the server stops, returning nil on a clean shutdown.
func (s *Server) Serve() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics: serving: %w", err)
	}
	return nil
}

// Close gracefully shuts the server down.
func (s *Server) Close(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
