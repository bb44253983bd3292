// Package sqlitestore keeps the todos table in a local SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Makepad-fr/tada/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS todos (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	done       INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_todos_created ON todos(created_at, id);
`

// DB wraps a sql.DB holding the todos table.
type DB struct {
	conn *sql.DB
}

const pragmas = "_journal_mode=WAL&_busy_timeout=5000"

// withPragmas appends the connection pragmas, keeping any query the DSN
// already carries.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) List(ctx context.Context) ([]model.Todo, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, text, done, created_at, updated_at FROM todos ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	out := []model.Todo{}
	for rows.Next() {
		var t model.Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.Done, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) Upsert(ctx context.Context, t model.Todo) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO todos (id, text, done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text       = excluded.text,
			done       = excluded.done,
			updated_at = excluded.updated_at
	`, t.ID, t.Text, t.Done, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("sqlitestore: upsert %s: %w", t.ID, err)
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete %s: %w", id, err)
	}
	return nil
}
