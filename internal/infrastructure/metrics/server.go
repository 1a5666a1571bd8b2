// Package metrics serves the Prometheus scrape endpoint the OTel Prometheus
// exporter registers into, the way the teacher's own metrics server exposed
// /metrics on its own port rather than folding it into the admin API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridmm/internal/bootstrap"
	"gridmm/internal/core"
)

var _ bootstrap.Runner = (*Server)(nil)

// Server exposes /metrics over HTTP on a fixed port.
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer builds a Server; it does not start listening until Run is called.
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{port: port, logger: logger.WithField("component", "metrics_server")}
}

// Run starts the metrics HTTP server and blocks until ctx is canceled, then
// shuts it down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.srv = &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting prometheus metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
