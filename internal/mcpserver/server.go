// Package mcpserver exposes the todo collection as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/state"
)

const todosURI = "tada://todos"

// Server wraps the MCP server with the todo tools.
type Server struct {
	mcp    *server.MCPServer
	todos  *state.Todos
	logger *slog.Logger
}

// New creates an MCP server with every tool registered.
func New(todos *state.Todos, version string, logger *slog.Logger) *Server {
	s := &Server{todos: todos, logger: logger}

	s.mcp = server.NewMCPServer(
		"tada",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_todos",
		mcp.WithDescription("List every todo in display order as JSON."),
	), s.listTodos)

	s.mcp.AddTool(mcp.NewTool("add_todo",
		mcp.WithDescription("Add a todo. Text is trimmed and must not be empty."),
		mcp.WithString("text", mcp.Required(), mcp.Description("What needs doing")),
	), s.addTodo)

	s.mcp.AddTool(mcp.NewTool("toggle_todo",
		mcp.WithDescription("Flip the done flag of a todo."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Todo id as returned by list_todos")),
	), s.toggleTodo)

	s.mcp.AddTool(mcp.NewTool("delete_todo",
		mcp.WithDescription("Delete a todo."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Todo id as returned by list_todos")),
	), s.deleteTodo)

	s.mcp.AddTool(mcp.NewTool("clear_completed_todos",
		mcp.WithDescription("Delete every todo marked done. Returns how many were removed."),
	), s.clearCompleted)

	s.mcp.AddResource(
		mcp.NewResource(todosURI, "Todos",
			mcp.WithResourceDescription("The current todo list."),
			mcp.WithMIMEType("application/json"),
		),
		s.readTodosResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// result turns an operation outcome into a tool result. Sync failures are
// reported as success with a note, since the change is applied and retried.
func (s *Server) result(v any, err error) (*mcp.CallToolResult, error) {
	note := ""
	if err != nil {
		if !errors.Is(err, apperr.ErrSync) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		s.logger.Warn("tool write not persisted yet", slog.String("error", err.Error()))
		note = "\n(saved locally, sync pending)"
	}
	out, mErr := json.MarshalIndent(v, "", "  ")
	if mErr != nil {
		return nil, fmt.Errorf("marshal result: %w", mErr)
	}
	return mcp.NewToolResultText(string(out) + note), nil
}

func (s *Server) listTodos(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result(s.todos.Snapshot(), nil)
}

func (s *Server) addTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(s.todos.AddTodo(ctx, text))
}

func (s *Server) toggleTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(s.todos.ToggleDone(ctx, id))
}

func (s *Server) deleteTodo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(map[string]string{"deleted": id}, s.todos.DeleteTodo(ctx, id))
}

func (s *Server) clearCompleted(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.todos.ClearCompletedTodos(ctx)
	return s.result(map[string]int{"cleared": n}, err)
}

func (s *Server) readTodosResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.todos.Snapshot())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      todosURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
