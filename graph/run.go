package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxSteps is the step ceiling applied when none is configured.
const DefaultMaxSteps = 50

// RunContext is the mutable record of one execution of a graph.
//
// It is written only by the execution loop driving it and may be read
// concurrently through Snapshot. A RunContext is never reused.
type RunContext struct {
	id       string
	instance *Instance
	maxSteps int
	done     chan struct{}

	mu         sync.RWMutex
	state      State
	history    []string
	status     Status
	stepCount  int
	errMsg     string
	startedAt  time.Time
	finishedAt time.Time
}

func newRunContext(inst *Instance, initial map[string]interface{}, maxSteps int) *RunContext {
	return &RunContext{
		id:       uuid.NewString(),
		instance: inst,
		maxSteps: maxSteps,
		done:     make(chan struct{}),
		state:    State(initial).Clone(),
		history:  []string{},
		status:   StatusCreated,
	}
}

// ID returns the run ID.
func (r *RunContext) ID() string { return r.id }

// Instance returns the graph the run executes.
func (r *RunContext) Instance() *Instance { return r.instance }

// Done returns a channel closed once the run reaches a terminal status.
func (r *RunContext) Done() <-chan struct{} { return r.done }

// Snapshot returns an immutable copy of the run's current record.
func (r *RunContext) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]string, len(r.history))
	copy(history, r.history)

	return RunSnapshot{
		RunID:      r.id,
		GraphID:    r.instance.ID(),
		Status:     r.status,
		State:      r.state.Clone(),
		History:    history,
		StepCount:  r.stepCount,
		MaxSteps:   r.maxSteps,
		Error:      r.errMsg,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
}

func (r *RunContext) transition(next Status, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.status.CanTransition(next) {
		return fmt.Errorf("run %s: invalid status transition %s -> %s", r.id, r.status, next)
	}
	r.status = next
	switch {
	case next == StatusRunning:
		r.startedAt = now
	case next.IsTerminal():
		r.finishedAt = now
		close(r.done)
	}
	return nil
}

func (r *RunContext) visit(nodeID string) {
	r.mu.Lock()
	r.history = append(r.history, nodeID)
	r.mu.Unlock()
}

func (r *RunContext) steps() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepCount
}

// stateCopy returns a deep copy of the current state for tools and the journal.
func (r *RunContext) stateCopy() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// completeStep merges update and advances the step counter, returning the
// new step number.
func (r *RunContext) completeStep(update map[string]interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state.Merge(update)
	r.stepCount++
	return r.stepCount
}

// fail records err in state and moves the run to failed. State updates
// already applied are kept.
func (r *RunContext) fail(err error, now time.Time) {
	r.mu.Lock()
	r.errMsg = err.Error()
	r.state[ErrorKey] = r.errMsg
	r.mu.Unlock()

	_ = r.transition(StatusFailed, now)
}

// RunSnapshot is a point-in-time, read-only copy of a run.
type RunSnapshot struct {
	RunID      string    `json:"run_id"`
	GraphID    string    `json:"graph_id"`
	Status     Status    `json:"status"`
	State      State     `json:"state"`
	History    []string  `json:"history"`
	StepCount  int       `json:"step_count"`
	MaxSteps   int       `json:"max_steps"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took, or has taken so far when it is
// still running.
func (s RunSnapshot) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
