package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// fakeServer mimics the /api/todos surface of `todo serve`.
type fakeServer struct {
	mu       sync.Mutex
	rows     map[string]model.Todo
	lastAuth string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastAuth = r.Header.Get("Authorization")

	id := strings.TrimPrefix(r.URL.Path, "/api/todos/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/todos":
		var out []model.Todo
		for _, t := range f.rows {
			out = append(out, t)
		}
		store.SortByCreation(out)
		_ = json.NewEncoder(w).Encode(map[string]any{"todos": out})
	case r.Method == http.MethodPut:
		var t model.Todo
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.rows[id] = t
		_ = json.NewEncoder(w).Encode(t)
	case r.Method == http.MethodDelete:
		if _, ok := f.rows[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		delete(f.rows, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusTeapot)
	}
}

func newClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", time.Second, logging.Discard(), opts...)
	require.NoError(t, err)
	return c
}

func TestClientCRUD(t *testing.T) {
	ctx := context.Background()
	fake := &fakeServer{rows: map[string]model.Todo{}}
	c := newClient(t, fake, WithToken(func() string { return "s3cret" }))

	rows, err := c.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, c.Upsert(ctx, model.Todo{ID: "a b", Text: "Buy milk", CreatedAt: now, UpdatedAt: now}))
	assert.Equal(t, "Bearer s3cret", fake.lastAuth)

	rows, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a b", rows[0].ID)
	assert.True(t, rows[0].CreatedAt.Equal(now))

	require.NoError(t, c.Delete(ctx, "a b"))
	require.NoError(t, c.Delete(ctx, "a b"), "404 on delete is not an error")
}

func TestClientStatusErrors(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})
	c := newClient(t, h)
	_, err := c.List(context.Background())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	h500 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c = newClient(t, h500)
	err = c.Upsert(context.Background(), model.Todo{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestUpsertReportsSupersededWrites(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	newer := model.Todo{ID: "a", Text: "newer", Done: true, CreatedAt: base, UpdatedAt: base.Add(time.Minute)}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/api/todos/") == "a" {
			_ = json.NewEncoder(w).Encode(newer)
			return
		}
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":"deleted"}`))
	})
	c := newClient(t, h)

	var sup *store.SupersededError
	err := c.Upsert(ctx, model.Todo{ID: "a", Text: "older", CreatedAt: base, UpdatedAt: base})
	require.ErrorAs(t, err, &sup)
	require.NotNil(t, sup.Current)
	assert.Equal(t, "newer", sup.Current.Text)
	assert.True(t, sup.Current.Done)

	err = c.Upsert(ctx, model.Todo{ID: "b", Text: "gone", CreatedAt: base, UpdatedAt: base})
	require.ErrorAs(t, err, &sup)
	assert.Equal(t, "b", sup.ID)
	assert.Nil(t, sup.Current)

	require.NoError(t, c.Upsert(ctx, newer), "an echo of the same row is accepted")
}

func TestReadEvents(t *testing.T) {
	body := ": keep-alive\n\n" +
		"event: todo.upserted\ndata: {\"a\":1}\n\n" +
		"event: other\ndata: line1\ndata: line2\n\n"
	type ev struct{ name, data string }
	var got []ev
	err := readEvents(strings.NewReader(body), func(event, data string) bool {
		got = append(got, ev{event, data})
		return true
	})
	assert.Error(t, err, "body end is reported")
	require.Len(t, got, 2)
	assert.Equal(t, ev{"todo.upserted", `{"a":1}`}, got[0])
	assert.Equal(t, ev{"other", "line1\nline2"}, got[1])
}

func TestWatchFollowsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		up, _ := json.Marshal(store.Change{Kind: store.ChangeUpsert, Todo: model.Todo{ID: "1", Text: "hi"}})
		del, _ := json.Marshal(store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: "2"}})
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventUpserted, up)
		fmt.Fprintf(w, "event: graph.updated\ndata: {}\n\n")
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventDeleted, del)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := newClient(t, h)

	ch, err := c.Watch(ctx)
	require.NoError(t, err)

	var got []store.Change
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case change := <-ch:
			got = append(got, change)
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, store.ChangeUpsert, got[0].Kind)
	assert.Equal(t, "hi", got[0].Todo.Text)
	assert.Equal(t, store.ChangeDelete, got[1].Kind)
	assert.Equal(t, "2", got[1].Todo.ID)
}
