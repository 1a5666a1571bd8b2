// Package adminapi exposes a small HTTP+JSON status surface over a
// registry.Registry: per-bot state, fund snapshots, and liveness/health —
// replacing the teacher's generated-protobuf gRPC control services with a
// plain net/http handler, since this module ships no .proto/codegen
// pipeline of its own.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"gridmm/internal/bootstrap"
	"gridmm/internal/core"
	"gridmm/internal/infrastructure/health"
	"gridmm/internal/trigger"
)

var _ bootstrap.Runner = (*Server)(nil)

// StatusSource is the subset of Registry the admin API reads from.
type StatusSource interface {
	Statuses() map[string]trigger.BotStatus
	Health() *health.HealthManager
}

// Server serves the status/health endpoints over HTTP.
type Server struct {
	source StatusSource
	logger core.ILogger
	http   *http.Server
}

// NewServer builds a Server bound to addr (e.g. ":8090"); it does not start
// listening until Run is called.
func NewServer(addr string, source StatusSource, logger core.ILogger) *Server {
	s := &Server{source: source, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// botStatusView is the JSON shape for one bot's status response.
type botStatusView struct {
	BotKey     string         `json:"bot_key"`
	Resyncing  bool           `json:"resyncing"`
	LastFillID string         `json:"last_fill_id"`
	SlotCounts map[string]int `json:"slot_counts"`
	BuyFunds   core.Funds     `json:"buy_funds"`
	SellFunds  core.Funds     `json:"sell_funds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.source.Statuses()
	views := make(map[string]botStatusView, len(statuses))
	for key, st := range statuses {
		views[key] = botStatusView{
			BotKey:     st.BotKey,
			Resyncing:  st.Resyncing,
			LastFillID: st.LastFillID,
			SlotCounts: st.SlotCounts,
			BuyFunds:   st.BuyFunds,
			SellFunds:  st.SellFunds,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Error("adminapi: encode status response failed", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	hm := s.source.Health()
	status := hm.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !hm.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("adminapi: encode health response failed", "error", err)
	}
}

// Run starts the HTTP server and blocks until ctx is canceled, then attempts
// a graceful shutdown — the admin surface never blocks bot shutdown on a
// slow client connection.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("adminapi: listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
