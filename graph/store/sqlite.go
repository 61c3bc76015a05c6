package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore journals steps to a single-file SQLite database.
//
// The database runs in WAL mode with a single connection, which suits the
// one-writer-per-process shape of the server. Use ":memory:" for tests.
type SQLiteStore[S any] struct {
	sqlJournal[S]
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// migrates the schema.
//
//	journal, err := store.NewSQLiteStore[graph.State](ctx, "./minigraph.db")
//	if err != nil {
//	    return err
//	}
//	defer journal.Close()
func NewSQLiteStore[S any](ctx context.Context, path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open (required for :memory:)
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			saved_at INTEGER NOT NULL,
			UNIQUE(run_id, step)
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create workflow_steps table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_steps_run_id ON workflow_steps(run_id)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create idx_steps_run_id: %w", err)
	}

	return &SQLiteStore[S]{
		sqlJournal: sqlJournal[S]{
			db: db,
			upsert: `
				INSERT INTO workflow_steps (run_id, step, node_id, state, saved_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(run_id, step) DO UPDATE SET
					node_id = excluded.node_id,
					state = excluded.state,
					saved_at = excluded.saved_at
			`,
			now: time.Now,
		},
		path: path,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
