// Package graph is a minimal workflow graph engine.
//
// A workflow is a directed graph of nodes, each bound by name to a tool.
// A run threads a key-value State through the graph: each visited node's
// tool returns a partial update that is merged into the state, and the
// node's outgoing edges, evaluated in declared order against the updated
// state, pick the next node. Runs end when no edge matches, when a
// terminal edge is taken, when the step ceiling is reached, or when a tool
// fails.
//
//	registry := tool.NewRegistry(extract, score)
//	engine, err := graph.New(registry)
//	if err != nil {
//	    return err
//	}
//	graphID, err := engine.CreateGraph(def)
//	if err != nil {
//	    return err
//	}
//	runID, err := engine.ExecuteRun(ctx, graphID, map[string]interface{}{"code": src})
//	if err != nil {
//	    return err
//	}
//	snap, _ := engine.GetRun(runID)
//	fmt.Println(snap.Status, snap.History)
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/tool"
)

// ToolResolver maps tool names to tools. *tool.Registry implements it.
type ToolResolver interface {
	Lookup(name string) (tool.Tool, bool)
}

// Engine stores registered graphs and runs, and drives runs through the
// execution loop. It is safe for concurrent use; each run is driven by
// exactly one goroutine.
type Engine struct {
	tools ToolResolver
	cfg   engineConfig

	mu     sync.RWMutex
	graphs map[string]*Instance
	runs   map[string]*RunContext
	order  []string // run IDs in registration order
}

// New creates an Engine resolving tools through tools.
func New(tools ToolResolver, opts ...Option) (*Engine, error) {
	if tools == nil {
		return nil, errors.New("tool resolver cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("invalid engine option: %w", err)
		}
	}

	return &Engine{
		tools:  tools,
		cfg:    cfg,
		graphs: make(map[string]*Instance),
		runs:   make(map[string]*RunContext),
	}, nil
}

// MaxSteps returns the step ceiling applied to new runs.
func (e *Engine) MaxSteps() int {
	return e.cfg.maxSteps
}

// CreateGraph validates def, registers it and returns the new graph ID.
// Validation failures match ErrInvalidGraph.
func (e *Engine) CreateGraph(def Definition) (string, error) {
	inst, err := newInstance(def, e.cfg.now())
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.graphs[inst.ID()] = inst
	e.mu.Unlock()

	e.cfg.metrics.graphRegistered()
	e.cfg.emitter.Emit(emit.Event{
		GraphID: inst.ID(),
		Msg:     emit.MsgGraphCreated,
		Meta: map[string]interface{}{
			"nodes":      len(def.Nodes),
			"edges":      len(def.Edges),
			"start_node": def.StartNode,
		},
	})
	return inst.ID(), nil
}

// GetGraph returns the registered graph with the given ID.
func (e *Engine) GetGraph(graphID string) (*Instance, error) {
	e.mu.RLock()
	inst, ok := e.graphs[graphID]
	e.mu.RUnlock()

	if !ok {
		return nil, &EngineError{Code: CodeGraphNotFound, Message: fmt.Sprintf("graph %q not found", graphID)}
	}
	return inst, nil
}

// ListGraphs returns the IDs of all registered graphs, sorted.
func (e *Engine) ListGraphs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.graphs))
	for id := range e.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ExecuteRun runs graphID from its start node with a copy of initial and
// blocks until the run is completed or failed. It returns the run ID.
//
// Only registry errors are returned: an unknown graph yields an error
// matching ErrGraphNotFound. Failures inside the run (unknown tool, tool
// error, cancellation) are recorded in the run's status and in its state
// under ErrorKey; use GetRun to inspect them.
//
// Cancelling ctx stops the run before its next step and fails it.
func (e *Engine) ExecuteRun(ctx context.Context, graphID string, initial map[string]interface{}) (string, error) {
	rc, err := e.newRun(graphID, initial)
	if err != nil {
		return "", err
	}
	e.drive(ctx, rc)
	return rc.ID(), nil
}

// StartRun is the non-blocking form of ExecuteRun: it registers the run,
// drives it on a new goroutine and returns the run ID immediately.
// Use AwaitRun or GetRun to observe the outcome.
func (e *Engine) StartRun(ctx context.Context, graphID string, initial map[string]interface{}) (string, error) {
	rc, err := e.newRun(graphID, initial)
	if err != nil {
		return "", err
	}
	go e.drive(ctx, rc)
	return rc.ID(), nil
}

// AwaitRun blocks until runID reaches a terminal status or ctx is done.
func (e *Engine) AwaitRun(ctx context.Context, runID string) (RunSnapshot, error) {
	rc, err := e.lookupRun(runID)
	if err != nil {
		return RunSnapshot{}, err
	}

	select {
	case <-rc.Done():
		return rc.Snapshot(), nil
	case <-ctx.Done():
		return rc.Snapshot(), ctx.Err()
	}
}

// GetRun returns a snapshot of runID. Unknown IDs yield an error matching
// ErrRunNotFound.
func (e *Engine) GetRun(runID string) (RunSnapshot, error) {
	rc, err := e.lookupRun(runID)
	if err != nil {
		return RunSnapshot{}, err
	}
	return rc.Snapshot(), nil
}

// ListRuns returns snapshots of the runs of graphID in the order they were
// started, or of every run when graphID is empty.
func (e *Engine) ListRuns(graphID string) []RunSnapshot {
	e.mu.RLock()
	contexts := make([]*RunContext, 0, len(e.order))
	for _, id := range e.order {
		rc := e.runs[id]
		if graphID == "" || rc.Instance().ID() == graphID {
			contexts = append(contexts, rc)
		}
	}
	e.mu.RUnlock()

	out := make([]RunSnapshot, len(contexts))
	for i, rc := range contexts {
		out[i] = rc.Snapshot()
	}
	return out
}

func (e *Engine) newRun(graphID string, initial map[string]interface{}) (*RunContext, error) {
	inst, err := e.GetGraph(graphID)
	if err != nil {
		return nil, err
	}

	rc := newRunContext(inst, initial, e.cfg.maxSteps)

	e.mu.Lock()
	e.runs[rc.ID()] = rc
	e.order = append(e.order, rc.ID())
	e.mu.Unlock()

	return rc, nil
}

func (e *Engine) lookupRun(runID string) (*RunContext, error) {
	e.mu.RLock()
	rc, ok := e.runs[runID]
	e.mu.RUnlock()

	if !ok {
		return nil, &EngineError{Code: CodeRunNotFound, Message: fmt.Sprintf("run %q not found", runID)}
	}
	return rc, nil
}
