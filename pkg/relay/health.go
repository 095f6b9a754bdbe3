// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

// StatsSource reports connection counters for the status endpoint.
// *Manager implements it.
type StatsSource interface {
	Stats() Stats
}

type statsResponse struct {
	State string `json:"state"`
	Stats
}

// NewHealthRouter serves the liveness endpoints. The body of / and /health
// is fixed; they report process liveness only, not connection health.
// stats may be nil, in which case /stats is not mounted.
func NewHealthRouter(stats StatsSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/", plainText("Service is running"))
	r.Get("/health", plainText("OK"))
	if stats != nil {
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			s := stats.Stats()
			render.JSON(w, r, statsResponse{State: s.State.String(), Stats: s})
		})
	}
	return r
}

func plainText(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}
}

// HealthServer is the liveness HTTP server.
type HealthServer struct {
	srv *http.Server
	log zerolog.Logger
}

func NewHealthServer(addr string, stats StatsSource, log zerolog.Logger) *HealthServer {
	return &HealthServer{
		srv: &http.Server{
			Addr:         addr,
			Handler:      NewHealthRouter(stats),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log.With().Str("component", "health").Logger(),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (h *HealthServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", h.srv.Addr).Msg("Starting health server")
		if err := h.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			h.log.Error().Err(err).Msg("Health server error")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	h.log.Info().Msg("Health server stopped")
	return nil
}
