package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/state"
)

// Handler holds the /api route handlers.
type Handler struct {
	todos  *state.Todos
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(todos *state.Todos, logger *slog.Logger) *Handler {
	return &Handler{todos: todos, logger: logger}
}

type createRequest struct {
	Text string `json:"text"`
}

// applied reports whether the collection changed; sync failures are
// retried in the background.
func applied(err error) bool {
	return err == nil || errors.Is(err, apperr.ErrSync)
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// ListTodos handles GET /api/todos.
func (h *Handler) ListTodos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"todos": h.todos.Snapshot()})
}

// CreateTodo handles POST /api/todos.
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	todo, err := h.todos.AddTodo(r.Context(), req.Text)
	if !applied(err) {
		writeError(w, h.logger, "add todo", err)
		return
	}
	if err != nil {
		h.logger.Warn("add todo not persisted yet", slog.String("id", todo.ID), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusCreated, todo)
}

// PutTodo handles PUT /api/todos/{id}: a replica pushing its full record.
func (h *Handler) PutTodo(w http.ResponseWriter, r *http.Request) {
	var todo model.Todo
	if err := decode(r, &todo); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	todo.ID = chi.URLParam(r, "id")
	stored, err := h.todos.Put(r.Context(), todo)
	if !applied(err) {
		writeError(w, h.logger, "put todo", err)
		return
	}
	if err != nil {
		h.logger.Warn("put todo not persisted yet", slog.String("id", stored.ID), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, stored)
}

// ToggleTodo handles POST /api/todos/{id}/toggle.
func (h *Handler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	todo, err := h.todos.ToggleDone(r.Context(), chi.URLParam(r, "id"))
	if !applied(err) {
		writeError(w, h.logger, "toggle todo", err)
		return
	}
	if err != nil {
		h.logger.Warn("toggle not persisted yet", slog.String("id", todo.ID), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, todo)
}

// DeleteTodo handles DELETE /api/todos/{id}.
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.todos.DeleteTodo(r.Context(), id)
	if !applied(err) {
		writeError(w, h.logger, "delete todo", err)
		return
	}
	if err != nil {
		h.logger.Warn("delete not persisted yet", slog.String("id", id), slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCompleted handles DELETE /api/todos?done=true.
func (h *Handler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("done") != "true" {
		writeJSON(w, http.StatusBadRequest, errorBody("only done=true may be cleared"))
		return
	}
	n, err := h.todos.ClearCompletedTodos(r.Context())
	if err != nil {
		h.logger.Warn("clear not persisted yet", slog.Int("cleared", n), slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}
