// Package server implements the tada REST API using chi.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Makepad-fr/tada/internal/state"
)

// NewAPIRouter mounts the todo routes. events, if non-nil, is served at
// GET /events behind the same auth middleware.
func NewAPIRouter(todos *state.Todos, authEnabled bool, token string, events http.Handler, logger *slog.Logger) chi.Router {
	h := NewHandler(todos, logger)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/todos", h.ListTodos)
	r.Post("/todos", h.CreateTodo)
	r.Delete("/todos", h.ClearCompleted)
	r.Put("/todos/{id}", h.PutTodo)
	r.Post("/todos/{id}/toggle", h.ToggleTodo)
	r.Delete("/todos/{id}", h.DeleteTodo)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}
	return r
}

// NewRouter builds the full handler: health checks and metrics, unauthenticated,
// plus the API under /api.
func NewRouter(api http.Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health/live", health)
	r.Get("/health/ready", health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Mount("/api", api)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
