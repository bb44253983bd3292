// Package memstore is an in-process table. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// Store keeps rows in memory and broadcasts every write to watchers.
type Store struct {
	mu       sync.Mutex
	rows     map[string]model.Todo
	watchers map[chan store.Change]struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		rows:     make(map[string]model.Todo),
		watchers: make(map[chan store.Change]struct{}),
	}
}

func (s *Store) List(_ context.Context) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Todo, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, t)
	}
	store.SortByCreation(out)
	return out, nil
}

func (s *Store) Upsert(_ context.Context, t model.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[t.ID] = t
	s.broadcast(store.Change{Kind: store.ChangeUpsert, Todo: t})
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return nil
	}
	delete(s.rows, id)
	s.broadcast(store.Change{Kind: store.ChangeDelete, Todo: model.Todo{ID: id}})
	return nil
}

// Watch streams every write made through this Store.
func (s *Store) Watch(ctx context.Context) (<-chan store.Change, error) {
	ch := make(chan store.Change, 64)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *Store) Close() error { return nil }

// broadcast must be called with mu held.
func (s *Store) broadcast(c store.Change) {
	for ch := range s.watchers {
		select {
		case ch <- c:
		default:
			// slow watcher; it reconciles on next load
		}
	}
}
