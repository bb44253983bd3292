package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, model.Todo{ID: "b", Text: "second", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Upsert(ctx, model.Todo{ID: "a", Text: "first", CreatedAt: base}))

	rows, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "missing"))
	rows, _ = s.List(ctx)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].ID)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, model.Todo{ID: "a", Text: "x"}))
	require.NoError(t, s.Delete(ctx, "a"))

	c := <-ch
	assert.Equal(t, store.ChangeUpsert, c.Kind)
	c = <-ch
	assert.Equal(t, store.ChangeDelete, c.Kind)
	assert.Equal(t, "a", c.Todo.ID)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}
