package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// sqlJournal holds the query logic shared by the SQL-backed stores.
// Backends differ only in DDL, upsert syntax and connection setup.
type sqlJournal[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	upsert string
	now    func() time.Time
}

func (j *sqlJournal[S]) checkOpen() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	return nil
}

func (j *sqlJournal[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := j.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = j.db.ExecContext(ctx, j.upsert, runID, step, nodeID, string(stateJSON), j.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func (j *sqlJournal[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	var zero S
	if err := j.checkOpen(); err != nil {
		return zero, 0, err
	}

	query := `
		SELECT step, state
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON string
	err = j.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

func (j *sqlJournal[S]) ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT step, node_id, state, saved_at
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`

	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var records []StepRecord[S]
	for rows.Next() {
		var (
			rec       StepRecord[S]
			stateJSON string
			savedAt   int64
		)
		if err := rows.Scan(&rec.Step, &rec.NodeID, &stateJSON, &savedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state for step %d: %w", rec.Step, err)
		}
		rec.SavedAt = time.Unix(0, savedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Close closes the database. Subsequent calls are no-ops.
func (j *sqlJournal[S]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// Ping verifies the database connection is alive.
func (j *sqlJournal[S]) Ping(ctx context.Context) error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	return j.db.PingContext(ctx)
}
