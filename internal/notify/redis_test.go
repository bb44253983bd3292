package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

func TestMergeClosesAfterAllSources(t *testing.T) {
	ctx := context.Background()
	a := make(chan store.Change, 1)
	b := make(chan store.Change, 1)
	a <- store.Change{Kind: store.ChangeUpsert, Todo: model.Todo{ID: "a"}}
	b <- store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: "b"}}
	close(a)
	close(b)

	out := merge(ctx, a, b)
	seen := map[string]bool{}
	timeout := time.After(time.Second)
	for {
		select {
		case c, ok := <-out:
			if !ok {
				assert.Equal(t, map[string]bool{"a": true, "b": true}, seen)
				return
			}
			seen[c.Todo.ID] = true
		case <-timeout:
			t.Fatal("merge did not close")
		}
	}
}

func TestMergeSingleSourceIsPassthrough(t *testing.T) {
	src := make(chan store.Change)
	out := merge(context.Background(), src)
	require.NotNil(t, out)
	close(src)
	_, ok := <-out
	assert.False(t, ok)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "not a url")
	assert.Error(t, err)
}
