// Package httpstatus exposes a tiny read-only HTTP surface over the
// extraction engine's health and dead-letter queue contents
package httpstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"powerpositions/internal/engine/domain"
	perr "powerpositions/internal/platform/errors"
	"powerpositions/internal/platform/logger"
)

// Server is a thin wrapper over chi + stdlib http.Server, mounting only
// /healthz and /dlq
type Server struct {
	addr  string
	mux   *chi.Mux
	srv   *http.Server
	ready atomic.Bool
}

// NewServer builds the ops server bound to addr, reading dead-letter queue
// entries from dlq
func NewServer(addr string, dlq domain.DeadLetterQueue) *Server {
	s := &Server{addr: addr}

	m := chi.NewRouter()
	m.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	m.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	m.Get("/dlq", func(w http.ResponseWriter, r *http.Request) {
		entries, err := dlq.PeekAll()
		if err != nil {
			status, wire := perr.HTTP(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(wire)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})

	s.mux = m
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           m,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// MarkReady flips the /healthz endpoint to report 200; called once the
// scheduler's startup dead-letter-queue drain completes
func (s *Server) MarkReady() { s.ready.Store(true) }

// Run starts the server and blocks until it is shut down
func (s *Server) Run(ctx context.Context) error {
	log := logger.Named("ops-http")
	log.Info().Str("addr", s.addr).Msg("ops http listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
