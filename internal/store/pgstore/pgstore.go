// Package pgstore keeps the todos table in PostgreSQL and streams row
// changes through LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

// NotifyChannel is the LISTEN channel the trigger publishes on.
const NotifyChannel = "todos_changes"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS todos (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	done       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_todos_created ON todos (created_at, id);

CREATE OR REPLACE FUNCTION todos_notify() RETURNS trigger AS $$
BEGIN
	IF TG_OP = 'DELETE' THEN
		PERFORM pg_notify('todos_changes', json_build_object('kind', 'delete', 'todo', json_build_object('id', OLD.id))::text);
		RETURN OLD;
	END IF;
	PERFORM pg_notify('todos_changes', json_build_object('kind', 'upsert', 'todo', row_to_json(NEW))::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS todos_notify ON todos;
CREATE TRIGGER todos_notify AFTER INSERT OR UPDATE OR DELETE ON todos
	FOR EACH ROW EXECUTE FUNCTION todos_notify();
`

// Store is a PostgreSQL-backed table.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects, pings and applies the schema.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) List(ctx context.Context) ([]model.Todo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, done, created_at, updated_at FROM todos ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list: %w", err)
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Done, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Upsert(ctx context.Context, t model.Todo) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO todos (id, text, done, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			text       = EXCLUDED.text,
			done       = EXCLUDED.done,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Text, t.Done, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: upsert %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id); err != nil {
		return fmt.Errorf("pgstore: delete %s: %w", id, err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Watch LISTENs on NotifyChannel using a dedicated pooled connection,
// reconnecting after failures until ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan store.Change, error) {
	out := make(chan store.Change, 64)
	go func() {
		defer close(out)
		backoff := time.Second
		for {
			err := s.listen(ctx, out)
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("pgstore: listen failed", slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
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

func (s *Store) listen(ctx context.Context, out chan<- store.Change) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		c, err := decodeNotification(n.Payload)
		if err != nil {
			s.logger.Warn("pgstore: bad notification", slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeNotification(payload string) (store.Change, error) {
	var c store.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return store.Change{}, fmt.Errorf("decode payload: %w", err)
	}
	if c.Todo.ID == "" || (c.Kind != store.ChangeUpsert && c.Kind != store.ChangeDelete) {
		return store.Change{}, fmt.Errorf("unexpected payload %q", payload)
	}
	return c, nil
}
