package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested run has no journaled steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed SQL store.
var ErrClosed = errors.New("store is closed")

// Store is an append-only journal of workflow steps.
//
// The engine writes one record after every completed node so a run's
// progress can be audited after the fact. Records are never read back into
// a live run.
//
// Type parameter S is the state type to persist (must be JSON-serializable
// for the SQL implementations).
type Store[S any] interface {
	// SaveStep records the state after a node execution step.
	// Steps are identified by runID + step number (1-indexed); saving the
	// same pair twice replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the highest-numbered step for runID.
	// Returns ErrNotFound if runID has no steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// ListSteps returns every step for runID ordered by step number.
	// Returns ErrNotFound if runID has no steps.
	ListSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// StepRecord is a single journaled step.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// NodeID identifies which node produced this state.
	NodeID string

	// State is the workflow state after this step completed.
	State S

	// SavedAt is when the record was written. Zero when the backend
	// does not track it.
	SavedAt time.Time
}

// Open builds a store for the named driver: "memory", "sqlite" or "mysql".
// dsn is ignored for "memory"; for "sqlite" it is a file path or ":memory:".
// The returned close function releases the backend and is never nil.
func Open[S any](ctx context.Context, driver, dsn string) (Store[S], func() error, error) {
	switch driver {
	case "", "memory":
		return NewMemStore[S](), func() error { return nil }, nil
	case "sqlite":
		s, err := NewSQLiteStore[S](ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mysql":
		s, err := NewMySQLStore[S](ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
