// Package remote is a table living behind a `todo serve` instance.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// Event names on the /api/events stream.
const (
	EventUpserted = "todo.upserted"
	EventDeleted  = "todo.deleted"
)

// Client talks to the /api/todos endpoints.
type Client struct {
	base   *url.URL
	token  func() string
	http   *http.Client
	stream *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token source, consulted on every request.
func WithToken(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// WithHTTPClient replaces the client used for both requests and the stream.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

// New returns a Client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse url: %w", err)
	}
	c := &Client{
		base:   u,
		token:  func() string { return "" },
		http:   &http.Client{Timeout: timeout},
		stream: &http.Client{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type listResponse struct {
	Todos []model.Todo `json:"todos"`
}

type errResponse struct {
	Error string `json:"error"`
}

func (c *Client) List(ctx context.Context) ([]model.Todo, error) {
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &out); err != nil {
		return nil, fmt.Errorf("remote: list: %w", err)
	}
	if out.Todos == nil {
		out.Todos = []model.Todo{}
	}
	return out.Todos, nil
}

// Upsert pushes t. When the server keeps a newer state it answers with that
// state, or 410 for a delete, and Upsert returns a *store.SupersededError.
func (c *Client) Upsert(ctx context.Context, t model.Todo) error {
	var got model.Todo
	err := c.do(ctx, http.MethodPut, "/api/todos/"+url.PathEscape(t.ID), t, &got)
	switch {
	case errors.Is(err, apperr.ErrDeleted):
		return &store.SupersededError{ID: t.ID}
	case err != nil:
		return fmt.Errorf("remote: upsert %s: %w", t.ID, err)
	case got.ID == t.ID && !got.Equal(t):
		return &store.SupersededError{ID: t.ID, Current: &got}
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), nil, nil)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("remote: delete %s: %w", id, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var e errResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
	msg := e.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, msg)
	case http.StatusGone:
		return fmt.Errorf("%w: %s", apperr.ErrDeleted, msg)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
}

// Watch follows /api/events, reconnecting with backoff until ctx is done.
func (c *Client) Watch(ctx context.Context) (<-chan store.Change, error) {
	out := make(chan store.Change, 64)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			err := c.follow(ctx, out, func() { backoff = time.Second })
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("remote: event stream ended",
				slog.Any("error", err), slog.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, 30*time.Second)
		}
	}()
	return out, nil
}

func (c *Client) follow(ctx context.Context, out chan<- store.Change, connected func()) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	connected()

	return readEvents(resp.Body, func(event, data string) bool {
		if event != EventUpserted && event != EventDeleted {
			return true
		}
		var ch store.Change
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			c.logger.Warn("remote: bad event", slog.String("event", event), slog.String("error", err.Error()))
			return true
		}
		select {
		case out <- ch:
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// readEvents calls fn for each event on a text/event-stream body until fn
// returns false or the body ends.
func readEvents(r io.Reader, fn func(event, data string) bool) error {
	for ev, err := range sse.Read(r, nil) {
		if err != nil {
			return err
		}
		if !fn(ev.Type, ev.Data) {
			return nil
		}
	}
	return io.EOF
}
