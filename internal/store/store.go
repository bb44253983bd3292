// Package store defines the table contract every todo backend implements.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/Makepad-fr/tada/internal/model"
)

// Table persists todo rows.
type Table interface {
	// List returns every row ordered by creation time.
	List(ctx context.Context) ([]model.Todo, error)
	// Upsert inserts or replaces the row with the same ID.
	Upsert(ctx context.Context, t model.Todo) error
	// Delete removes the row. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Watcher is implemented by tables that can stream changes made elsewhere.
// The returned channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// ChangeKind tells what happened to a row.
type ChangeKind string

const (
	ChangeUpsert ChangeKind = "upsert"
	ChangeDelete ChangeKind = "delete"
)

// SupersededError is returned by Upsert when the table already holds a newer
// state for the row. Current is nil when that state is a delete.
type SupersededError struct {
	ID      string
	Current *model.Todo
}

func (e *SupersededError) Error() string {
	if e.Current == nil {
		return fmt.Sprintf("write to %s superseded: row was deleted", e.ID)
	}
	return fmt.Sprintf("write to %s superseded by version of %s", e.ID, e.Current.UpdatedAt.Format("2006-01-02T15:04:05.000000Z07:00"))
}

// Change is a single row event. Delete changes only carry Todo.ID reliably.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Todo model.Todo `json:"todo"`
}

// SortByCreation orders rows the way List must return them.
func SortByCreation(todos []model.Todo) {
	sort.SliceStable(todos, func(i, j int) bool {
		a, b := todos[i], todos[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Diff returns the changes turning prev into next.
func Diff(prev, next []model.Todo) []Change {
	old := make(map[string]model.Todo, len(prev))
	for _, t := range prev {
		old[t.ID] = t
	}
	var out []Change
	seen := make(map[string]struct{}, len(next))
	for _, t := range next {
		seen[t.ID] = struct{}{}
		if o, ok := old[t.ID]; ok && o.Equal(t) {
			continue
		}
		out = append(out, Change{Kind: ChangeUpsert, Todo: t})
	}
	for _, t := range prev {
		if _, ok := seen[t.ID]; !ok {
			out = append(out, Change{Kind: ChangeDelete, Todo: model.Todo{ID: t.ID}})
		}
	}
	return out
}
