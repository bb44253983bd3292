package jsonstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "todos.json"), logging.Discard())
	require.NoError(t, err)
	return s
}

func TestMissingFileIsEmpty(t *testing.T) {
	s := openTemp(t)
	rows, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDirectoryPathUsesDefaultFileName(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultFileName), s.Path())
}

func TestUpsertDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := model.Todo{ID: "1", Text: "Buy milk", CreatedAt: base, UpdatedAt: base}
	second := model.Todo{ID: "2", Text: "Walk dog", CreatedAt: base.Add(time.Minute), UpdatedAt: base}
	require.NoError(t, s.Upsert(ctx, second))
	require.NoError(t, s.Upsert(ctx, first))

	first.Done = true
	require.NoError(t, s.Upsert(ctx, first))

	// a fresh store reads what the first one wrote
	again, err := Open(s.Path(), logging.Discard())
	require.NoError(t, err)
	rows, err := again.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)
	assert.True(t, rows[0].Done)
	assert.Equal(t, "2", rows[1].ID)

	require.NoError(t, s.Delete(ctx, "1"))
	require.NoError(t, s.Delete(ctx, "nope"))
	rows, _ = again.List(ctx)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].ID)

	// human-readable, indented array
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  {")
}

func TestCorruptFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "todos.json")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))
	_, err := Open(p, logging.Discard())
	assert.ErrorContains(t, err, "json unmarshal")
}

func TestWatchSeesExternalEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := openTemp(t)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Upsert(ctx, model.Todo{ID: "1", Text: "mine", CreatedAt: base, UpdatedAt: base}))

	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	// another process rewrites the file
	external := []model.Todo{
		{ID: "1", Text: "mine", Done: true, CreatedAt: base, UpdatedAt: base.Add(time.Second)},
		{ID: "2", Text: "theirs", CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second)},
	}
	b, err := json.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), b, 0o644))

	got := map[string]store.Change{}
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case c := <-ch:
			got[c.Todo.ID] = c
		case <-deadline:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.True(t, got["1"].Todo.Done)
	assert.Equal(t, store.ChangeUpsert, got["2"].Kind)
	assert.Equal(t, "theirs", got["2"].Todo.Text)
}

func TestWatchIgnoresOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := openTemp(t)
	ch, err := s.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(ctx, model.Todo{ID: "1", Text: "mine"}))

	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(300 * time.Millisecond):
	}
}
