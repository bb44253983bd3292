package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// JSON-backed table. Single file, human-readable, portable.
// Writes go through a temp file + rename so readers never see half a file.

// DefaultFileName is used when the configured path is a directory.
const DefaultFileName = "todos.json"

const debounce = 50 * time.Millisecond

// Store is a table kept in one JSON file.
type Store struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last []model.Todo // rows as of our last read or write
}

// Open returns a Store for path. The file is created lazily on first write.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("jsonstore: abs path: %w", err)
	}
	s := &Store{path: abs, logger: logger}
	rows, err := s.load()
	if err != nil {
		return nil, err
	}
	s.last = rows
	return s, nil
}

// Path returns the absolute file path.
func (s *Store) Path() string { return s.path }

func (s *Store) load() ([]model.Todo, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Todo{}, nil
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(b) == 0 {
		return []model.Todo{}, nil
	}
	var rows []model.Todo
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	store.SortByCreation(rows)
	return rows, nil
}

func (s *Store) save(rows []model.Todo) error {
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".todos-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]model.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.load()
	if err != nil {
		return nil, err
	}
	s.last = rows
	return append([]model.Todo(nil), rows...), nil
}

func (s *Store) Upsert(_ context.Context, t model.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range rows {
		if rows[i].ID == t.ID {
			rows[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, t)
	}
	store.SortByCreation(rows)
	if err := s.save(rows); err != nil {
		return err
	}
	s.last = rows
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].ID == id {
			rows = append(rows[:i], rows[i+1:]...)
			if err := s.save(rows); err != nil {
				return err
			}
			s.last = rows
			return nil
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Watch reports edits made to the file by other processes. The parent
// directory is watched so atomic renames are seen too.
func (s *Store) Watch(ctx context.Context) (<-chan store.Change, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("jsonstore: new watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.Close()
		return nil, fmt.Errorf("jsonstore: mkdir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("jsonstore: watch %s: %w", dir, err)
	}

	out := make(chan store.Change, 64)
	go s.watchLoop(ctx, w, out)
	return out, nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, out chan<- store.Change) {
	defer close(out)
	defer w.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}

		case <-fire:
			timer, fire = nil, nil
			for _, c := range s.reconcile() {
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("jsonstore: watch error", slog.String("error", err.Error()))
		}
	}
}

// reconcile re-reads the file and returns what changed since last time.
func (s *Store) reconcile() []store.Change {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.load()
	if err != nil {
		s.logger.Warn("jsonstore: reload failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return nil
	}
	changes := store.Diff(s.last, rows)
	s.last = rows
	return changes
}
