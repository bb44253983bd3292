package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/state"
)

const shutdownTimeout = 10 * time.Second

// Server hosts the todo collection over HTTP.
type Server struct {
	cfg     config.ServerConfig
	todos   *state.Todos
	broker  *Broker
	handler http.Handler
	logger  *slog.Logger
}

// New wires the routes. gatherer may be nil to disable /metrics.
func New(cfg config.ServerConfig, todos *state.Todos, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	broker := NewBroker()
	api := NewAPIRouter(todos, cfg.Auth.Mode == config.AuthModeToken, cfg.Auth.Token, broker, logger)
	return &Server{
		cfg:     cfg,
		todos:   todos,
		broker:  broker,
		handler: NewRouter(api, gatherer, logger),
		logger:  logger,
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.broker.Close()

	httpServer := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.todos.Run(gCtx)
	})

	g.Go(func() error {
		s.Forward(gCtx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// open event streams only end when the broker closes
		s.broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := s.todos.Flush(shutdownCtx); err != nil {
			s.logger.Warn("unsynced writes at shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("Server stopped successfully")
	return nil
}

// Forward publishes every collection change on the event stream until ctx
// is done.
func (s *Server) Forward(ctx context.Context) {
	changes, cancel := s.todos.Changes()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			s.broker.Publish(ChangeEvent(c))
		}
	}
}
