package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitobit-development/bms-dashboard-sub000/pkg/log"
)

// AdminServer exposes the metrics, health, and websocket endpoints while the
// engine runs in continuous mode.
type AdminServer struct {
	hub *Hub

	listenAddr string
	httpServer *http.Server
}

// Configured initializes the AdminServer with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(hub *Hub) *AdminServer {
	srv := &AdminServer{hub: hub}

	listenAddr := lflag.String("admin-listen", ":8080", "Admin HTTP server listen address")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
	})

	return srv
}

// NewAdminServer builds a server without flag registration, for tests.
func NewAdminServer(hub *Hub, listenAddr string) *AdminServer {
	return &AdminServer{hub: hub, listenAddr: listenAddr}
}

func (s *AdminServer) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("/ws/telemetry", s.hub)
	return mux
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done.
func (s *AdminServer) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting admin server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down admin server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("admin server error: %w", err)
	}
}
