package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

func TestBrokerSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	assert.Equal(t, 0, b.ClientCount())

	ch := b.Subscribe()
	assert.Equal(t, 1, b.ClientCount())

	b.Unsubscribe(ch)
	assert.Equal(t, 0, b.ClientCount())
}

func TestBrokerPublishDelivery(t *testing.T) {
	b := NewBroker()
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(ChangeEvent(store.Change{Kind: store.ChangeUpsert, Todo: model.Todo{ID: "a", Text: "milk"}}))

	select {
	case msg := <-ch:
		s := string(msg)
		assert.Contains(t, s, "event: todo.upserted\n")
		assert.Contains(t, s, `"id":"a"`)
		assert.True(t, strings.HasSuffix(s, "\n\n"))
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChangeEventDelete(t *testing.T) {
	ev := ChangeEvent(store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: "a"}})
	assert.Equal(t, "todo.deleted", ev.Type)
}

func TestBrokerCloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.ClientCount())
	b.Publish(Event{Type: "x"}) // no-op after close

	late := b.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestBrokerServeHTTP(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(Event{Type: "todo.deleted", Data: map[string]string{"id": "z"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: todo.deleted")
}
