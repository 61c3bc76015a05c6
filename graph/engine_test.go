package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dshills/minigraph/graph/emit"
	"github.com/dshills/minigraph/graph/store"
	"github.com/dshills/minigraph/graph/tool"
)

// setTool returns a tool that merges fixed values into state.
func setTool(name string, values map[string]interface{}) tool.Tool {
	return tool.Func(name, func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		return values, nil
	})
}

// incrTool adds by to the integer under key.
func incrTool(name, key string, by int) tool.Tool {
	return tool.Func(name, func(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
		n, _ := State(in).Int(key)
		return map[string]interface{}{key: n + by}, nil
	})
}

func noopTool(name string) tool.Tool {
	return tool.Func(name, func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	})
}

func newTestEngine(t *testing.T, reg *tool.Registry, opts ...Option) *Engine {
	t.Helper()
	engine, err := New(reg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func mustCreate(t *testing.T, engine *Engine, def Definition) string {
	t.Helper()
	id, err := engine.CreateGraph(def)
	if err != nil {
		t.Fatalf("CreateGraph: %v", err)
	}
	return id
}

func mustRun(t *testing.T, engine *Engine, graphID string, initial map[string]interface{}) RunSnapshot {
	t.Helper()
	runID, err := engine.ExecuteRun(context.Background(), graphID, initial)
	if err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	snap, err := engine.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	return snap
}

func TestNew(t *testing.T) {
	t.Run("nil resolver", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Error("expected error for nil resolver")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		engine := newTestEngine(t, tool.NewRegistry())
		if engine.MaxSteps() != DefaultMaxSteps {
			t.Errorf("MaxSteps = %d, want %d", engine.MaxSteps(), DefaultMaxSteps)
		}
	})

	t.Run("invalid options", func(t *testing.T) {
		invalid := []Option{
			WithMaxSteps(0),
			WithMaxSteps(-1),
			WithEmitter(nil),
			WithToolTimeout(-time.Second),
			WithMissingNodePolicy(MissingNodePolicy(9)),
			WithClock(nil),
		}
		for i, opt := range invalid {
			if _, err := New(tool.NewRegistry(), opt); err == nil {
				t.Errorf("option %d: expected error", i)
			}
		}
	})
}

func TestLinearRun(t *testing.T) {
	reg := tool.NewRegistry(
		setTool("first", map[string]interface{}{"a": 1}),
		setTool("second", map[string]interface{}{"b": "two"}),
	)
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "one", ToolName: "first"}, {ID: "two", ToolName: "second"}},
		Edges:     []Edge{{From: "one", To: "two"}},
		StartNode: "one",
	})

	snap := mustRun(t, engine, graphID, map[string]interface{}{"seed": true})

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (error %q)", snap.Status, snap.Error)
	}
	wantState := State{"seed": true, "a": 1, "b": "two"}
	if diff := cmp.Diff(wantState, snap.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"one", "two"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if snap.StepCount != 2 {
		t.Errorf("StepCount = %d, want 2", snap.StepCount)
	}
	if snap.GraphID != graphID || snap.RunID == "" {
		t.Errorf("ids = (%q, %q)", snap.RunID, snap.GraphID)
	}
	if snap.StartedAt.IsZero() || snap.FinishedAt.IsZero() {
		t.Error("timestamps not recorded")
	}
}

func TestStepCeiling(t *testing.T) {
	reg := tool.NewRegistry(incrTool("tick", "n", 1))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes: []Node{{ID: "a", ToolName: "tick"}, {ID: "b", ToolName: "tick"}},
		Edges: []Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a", Condition: "n >= 0"},
		},
		StartNode: "a",
	})

	snap := mustRun(t, engine, graphID, nil)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if snap.StepCount != DefaultMaxSteps {
		t.Errorf("StepCount = %d, want %d", snap.StepCount, DefaultMaxSteps)
	}
	if len(snap.History) != DefaultMaxSteps {
		t.Errorf("len(History) = %d, want %d", len(snap.History), DefaultMaxSteps)
	}
	if n, _ := snap.State.Int("n"); n != DefaultMaxSteps {
		t.Errorf("n = %d, want %d", n, DefaultMaxSteps)
	}
	if _, ok := snap.State[ErrorKey]; ok {
		t.Error("step ceiling must not record an error")
	}
}

func TestStepCeilingConfigurable(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	reg := tool.NewRegistry(noopTool("loop"))
	engine := newTestEngine(t, reg, WithMaxSteps(5), WithEmitter(buf))
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "self", ToolName: "loop"}},
		Edges:     []Edge{{From: "self", To: "self"}},
		StartNode: "self",
	})

	snap := mustRun(t, engine, graphID, nil)

	if snap.StepCount != 5 || snap.MaxSteps != 5 {
		t.Errorf("StepCount/MaxSteps = %d/%d, want 5/5", snap.StepCount, snap.MaxSteps)
	}
	limit := buf.GetHistoryWithFilter(snap.RunID, emit.HistoryFilter{Msg: emit.MsgStepLimit})
	if len(limit) != 1 {
		t.Errorf("expected 1 step_limit_reached event, got %d", len(limit))
	}
}

func TestFirstMatchWins(t *testing.T) {
	reg := tool.NewRegistry(
		setTool("start", map[string]interface{}{"score": 90}),
		noopTool("noop"),
	)
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes: []Node{
			{ID: "s", ToolName: "start"},
			{ID: "first", ToolName: "noop"},
			{ID: "second", ToolName: "noop"},
			{ID: "fallback", ToolName: "noop"},
		},
		Edges: []Edge{
			{From: "s", To: "first", Condition: "score > 50"},
			{From: "s", To: "second", Condition: "score > 10"},
			{From: "s", To: "fallback"},
		},
		StartNode: "s",
	})

	snap := mustRun(t, engine, graphID, nil)
	if diff := cmp.Diff([]string{"s", "first"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestUnconditionalFallback(t *testing.T) {
	reg := tool.NewRegistry(setTool("start", map[string]interface{}{"score": 5}), noopTool("noop"))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes: []Node{{ID: "s", ToolName: "start"}, {ID: "hi", ToolName: "noop"}, {ID: "lo", ToolName: "noop"}},
		Edges: []Edge{
			{From: "s", To: "hi", Condition: "score > 50"},
			{From: "s", To: "lo"},
			{From: "s", To: "hi"},
		},
		StartNode: "s",
	})

	snap := mustRun(t, engine, graphID, nil)
	if diff := cmp.Diff([]string{"s", "lo"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestTerminalEdge(t *testing.T) {
	reg := tool.NewRegistry(setTool("grade", map[string]interface{}{"quality_score": 80}), noopTool("noop"))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes: []Node{{ID: "issues", ToolName: "grade"}, {ID: "suggest", ToolName: "noop"}},
		Edges: []Edge{
			{From: "issues", Condition: "quality_score >= 80"},
			{From: "issues", To: "suggest"},
		},
		StartNode: "issues",
	})

	snap := mustRun(t, engine, graphID, nil)
	if snap.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if diff := cmp.Diff([]string{"issues"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestNoMatchingEdgeCompletes(t *testing.T) {
	reg := tool.NewRegistry(noopTool("noop"))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "a", ToolName: "noop"}, {ID: "b", ToolName: "noop"}},
		Edges:     []Edge{{From: "a", To: "b", Condition: "false"}},
		StartNode: "a",
	})

	snap := mustRun(t, engine, graphID, nil)
	if snap.Status != StatusCompleted || len(snap.History) != 1 {
		t.Errorf("got status %s history %v", snap.Status, snap.History)
	}
}

func TestConditionErrorSkipsEdge(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	reg := tool.NewRegistry(noopTool("noop"))
	engine := newTestEngine(t, reg, WithEmitter(buf))
	graphID := mustCreate(t, engine, Definition{
		Nodes: []Node{{ID: "a", ToolName: "noop"}, {ID: "b", ToolName: "noop"}, {ID: "c", ToolName: "noop"}},
		Edges: []Edge{
			{From: "a", To: "b", Condition: "undefined_key > 3"},
			{From: "a", To: "c"},
		},
		StartNode: "a",
	})

	snap := mustRun(t, engine, graphID, nil)

	if snap.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if diff := cmp.Diff([]string{"a", "c"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	events := buf.GetHistoryWithFilter(snap.RunID, emit.HistoryFilter{Msg: emit.MsgConditionError})
	if len(events) != 1 {
		t.Fatalf("expected 1 condition_error event, got %d", len(events))
	}
	if msg, _ := events[0].Meta["error"].(string); !strings.Contains(msg, CodeConditionEvaluation) {
		t.Errorf("error meta = %q", msg)
	}
}

func TestUnknownTool(t *testing.T) {
	engine := newTestEngine(t, tool.NewRegistry())
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "only", ToolName: "not_registered"}},
		StartNode: "only",
	})

	runID, err := engine.ExecuteRun(context.Background(), graphID, map[string]interface{}{"keep": 1})
	if err != nil {
		t.Fatalf("ExecuteRun must not surface loop errors, got %v", err)
	}
	snap, _ := engine.GetRun(runID)

	if snap.Status != StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
	msg, _ := snap.State.String(ErrorKey)
	if msg == "" || !strings.Contains(msg, "not_registered") {
		t.Errorf("state[error] = %q", msg)
	}
	if snap.Error != msg {
		t.Errorf("snapshot Error = %q, want %q", snap.Error, msg)
	}
	if diff := cmp.Diff([]string{"only"}, snap.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if snap.StepCount != 0 {
		t.Errorf("StepCount = %d, want 0", snap.StepCount)
	}
	if v, _ := snap.State.Int("keep"); v != 1 {
		t.Error("initial state lost")
	}
}

func TestToolFailureKeepsEarlierUpdates(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		tool tool.Tool
	}{
		{"error", tool.Func("explode", func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{"partial": true}, boom
		})},
		{"panic", tool.Func("explode", func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
			panic("kaboom")
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := tool.NewRegistry(setTool("ok", map[string]interface{}{"done": 1}), tt.tool, noopTool("never"))
			engine := newTestEngine(t, reg)
			graphID := mustCreate(t, engine, Definition{
				Nodes: []Node{
					{ID: "a", ToolName: "ok"},
					{ID: "b", ToolName: "explode"},
					{ID: "c", ToolName: "never"},
				},
				Edges:     []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
				StartNode: "a",
			})

			snap := mustRun(t, engine, graphID, nil)

			if snap.Status != StatusFailed {
				t.Fatalf("status = %s, want failed", snap.Status)
			}
			if v, _ := snap.State.Int("done"); v != 1 {
				t.Error("update from earlier step was rolled back")
			}
			if _, ok := snap.State["partial"]; ok {
				t.Error("update from failing tool must not be merged")
			}
			if diff := cmp.Diff([]string{"a", "b"}, snap.History); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}
			msg, _ := snap.State.String(ErrorKey)
			if !strings.Contains(msg, CodeToolFailed) {
				t.Errorf("state[error] = %q", msg)
			}
			if len(snap.History) != snap.StepCount+1 {
				t.Errorf("len(History) = %d, StepCount = %d", len(snap.History), snap.StepCount)
			}
		})
	}
}

func TestToolTimeout(t *testing.T) {
	slow := tool.Func("slow", func(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return map[string]interface{}{"late": true}, nil
		}
	})
	engine := newTestEngine(t, tool.NewRegistry(slow), WithToolTimeout(20*time.Millisecond))
	graphID := mustCreate(t, engine, Definition{Nodes: []Node{{ID: "s", ToolName: "slow"}}, StartNode: "s"})

	snap := mustRun(t, engine, graphID, nil)
	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.Error, "timeout") {
		t.Errorf("Error = %q, want timeout", snap.Error)
	}
}

func TestMissingNodePolicy(t *testing.T) {
	def := Definition{
		Nodes:     []Node{{ID: "a", ToolName: "noop"}},
		Edges:     []Edge{{From: "a", To: "ghost"}},
		StartNode: "a",
	}

	t.Run("complete by default", func(t *testing.T) {
		buf := emit.NewBufferedEmitter()
		engine := newTestEngine(t, tool.NewRegistry(noopTool("noop")), WithEmitter(buf))
		snap := mustRun(t, engine, mustCreate(t, engine, def), nil)

		if snap.Status != StatusCompleted {
			t.Errorf("status = %s, want completed", snap.Status)
		}
		if diff := cmp.Diff([]string{"a", "ghost"}, snap.History); diff != "" {
			t.Errorf("history mismatch (-want +got):\n%s", diff)
		}
		if len(snap.History) != snap.StepCount+1 {
			t.Errorf("len(History) = %d, StepCount = %d", len(snap.History), snap.StepCount)
		}
		if n := len(buf.GetHistoryWithFilter(snap.RunID, emit.HistoryFilter{Msg: emit.MsgNodeMissing})); n != 1 {
			t.Errorf("expected 1 node_missing event, got %d", n)
		}
		if n := len(buf.GetHistoryWithFilter(snap.RunID, emit.HistoryFilter{Msg: emit.MsgStepLimit})); n != 0 {
			t.Errorf("expected no step_limit_reached event, got %d", n)
		}
	})

	t.Run("fail", func(t *testing.T) {
		engine := newTestEngine(t, tool.NewRegistry(noopTool("noop")), WithMissingNodePolicy(MissingNodeFail))
		snap := mustRun(t, engine, mustCreate(t, engine, def), nil)

		if snap.Status != StatusFailed {
			t.Errorf("status = %s, want failed", snap.Status)
		}
		if !strings.Contains(snap.Error, CodeMissingNode) {
			t.Errorf("Error = %q", snap.Error)
		}
	})
}

func TestNotFound(t *testing.T) {
	engine := newTestEngine(t, tool.NewRegistry())

	_, err := engine.ExecuteRun(context.Background(), "no-such-graph", nil)
	if !errors.Is(err, ErrGraphNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("ExecuteRun error = %v, want ErrGraphNotFound", err)
	}

	_, err = engine.GetRun("no-such-run")
	if !errors.Is(err, ErrRunNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun error = %v, want ErrRunNotFound", err)
	}
	if errors.Is(err, ErrGraphNotFound) {
		t.Error("run lookup must not match ErrGraphNotFound")
	}

	if _, err := engine.GetGraph("nope"); !errors.Is(err, ErrGraphNotFound) {
		t.Errorf("GetGraph error = %v", err)
	}
	if _, err := engine.AwaitRun(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("AwaitRun error = %v", err)
	}
}

func TestCreateGraphRejectsInvalid(t *testing.T) {
	engine := newTestEngine(t, tool.NewRegistry())
	_, err := engine.CreateGraph(Definition{StartNode: "x"})
	if !errors.Is(err, ErrInvalidGraph) {
		t.Errorf("CreateGraph error = %v, want ErrInvalidGraph", err)
	}
	if len(engine.ListGraphs()) != 0 {
		t.Error("invalid graph was registered")
	}
}

func TestInitialStateIsolation(t *testing.T) {
	reg := tool.NewRegistry(tool.Func("mutate", func(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
		// Mutating the input must not leak into the run or the caller.
		in["sneaky"] = true
		if list, ok := in["list"].([]interface{}); ok && len(list) > 0 {
			list[0] = "changed"
		}
		return map[string]interface{}{"visited": true}, nil
	}))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{Nodes: []Node{{ID: "m", ToolName: "mutate"}}, StartNode: "m"})

	initial := map[string]interface{}{"list": []interface{}{"orig"}}
	snap := mustRun(t, engine, graphID, initial)

	if _, ok := snap.State["sneaky"]; ok {
		t.Error("tool input mutation leaked into run state")
	}
	if got := snap.State["list"].([]interface{})[0]; got != "orig" {
		t.Errorf("run state list[0] = %v, want orig", got)
	}
	if got := initial["list"].([]interface{})[0]; got != "orig" {
		t.Errorf("caller's initial state was mutated: %v", got)
	}
	if _, ok := initial["visited"]; ok {
		t.Error("caller's initial map was written to")
	}

	snap.State["visited"] = "tampered"
	again, _ := engine.GetRun(snap.RunID)
	if again.State["visited"] != true {
		t.Error("snapshot state aliases run state")
	}
}

func TestConcurrentRuns(t *testing.T) {
	reg := tool.NewRegistry(incrTool("incr", "n", 1))
	engine := newTestEngine(t, reg, WithMaxSteps(10))
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "loop", ToolName: "incr"}},
		Edges:     []Edge{{From: "loop", To: "loop", Condition: "n < 10"}},
		StartNode: "loop",
	})

	shared := map[string]interface{}{"n": 0}
	const runs = 20

	var wg sync.WaitGroup
	ids := make([]string, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := engine.ExecuteRun(context.Background(), graphID, shared)
			if err != nil {
				t.Errorf("ExecuteRun: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate run id %s", id)
		}
		seen[id] = true
		snap, err := engine.GetRun(id)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if n, _ := snap.State.Int("n"); n != 10 {
			t.Errorf("run %s: n = %d, want 10", id, n)
		}
	}
	if shared["n"] != 0 {
		t.Errorf("shared initial state mutated: %v", shared["n"])
	}
	if got := len(engine.ListRuns(graphID)); got != runs {
		t.Errorf("ListRuns = %d, want %d", got, runs)
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := tool.NewRegistry(tool.Func("stop", func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		cancel()
		return map[string]interface{}{"ran": true}, nil
	}))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "a", ToolName: "stop"}},
		Edges:     []Edge{{From: "a", To: "a"}},
		StartNode: "a",
	})

	runID, err := engine.ExecuteRun(ctx, graphID, nil)
	if err != nil {
		t.Fatalf("ExecuteRun: %v", err)
	}
	snap, _ := engine.GetRun(runID)

	if snap.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.Error, context.Canceled.Error()) {
		t.Errorf("Error = %q, want context canceled", snap.Error)
	}
	if snap.StepCount != 1 || len(snap.History) != 2 {
		t.Errorf("StepCount = %d, History = %v", snap.StepCount, snap.History)
	}
	if ran, _ := snap.State.Bool("ran"); !ran {
		t.Error("completed step update lost")
	}
}

func TestStartAndAwaitRun(t *testing.T) {
	release := make(chan struct{})
	reg := tool.NewRegistry(tool.Func("wait", func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
		<-release
		return map[string]interface{}{"released": true}, nil
	}))
	engine := newTestEngine(t, reg)
	graphID := mustCreate(t, engine, Definition{Nodes: []Node{{ID: "w", ToolName: "wait"}}, StartNode: "w"})

	runID, err := engine.StartRun(context.Background(), graphID, nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := engine.AwaitRun(shortCtx, runID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("AwaitRun before release = %v, want deadline exceeded", err)
	}

	close(release)
	snap, err := engine.AwaitRun(context.Background(), runID)
	if err != nil {
		t.Fatalf("AwaitRun: %v", err)
	}
	if snap.Status != StatusCompleted {
		t.Errorf("status = %s", snap.Status)
	}
	if released, _ := snap.State.Bool("released"); !released {
		t.Error("tool update missing")
	}
}

func TestStepJournal(t *testing.T) {
	journal := store.NewMemStore[State]()
	reg := tool.NewRegistry(incrTool("incr", "n", 1))
	engine := newTestEngine(t, reg, WithStore(journal), WithMaxSteps(3))
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "x", ToolName: "incr"}},
		Edges:     []Edge{{From: "x", To: "x"}},
		StartNode: "x",
	})

	snap := mustRun(t, engine, graphID, nil)

	records, err := journal.ListSteps(context.Background(), snap.RunID)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(records) != snap.StepCount {
		t.Fatalf("journal has %d records, want %d", len(records), snap.StepCount)
	}
	for i, rec := range records {
		if n, _ := rec.State.Int("n"); n != i+1 {
			t.Errorf("record %d: n = %d, want %d", i, n, i+1)
		}
	}
}

type failingStore struct{ store.Store[State] }

func (failingStore) SaveStep(context.Context, string, int, string, State) error {
	return errors.New("disk full")
}

func TestStepJournalFailureFailsRun(t *testing.T) {
	engine := newTestEngine(t, tool.NewRegistry(noopTool("noop")), WithStore(failingStore{}))
	graphID := mustCreate(t, engine, Definition{Nodes: []Node{{ID: "a", ToolName: "noop"}}, StartNode: "a"})

	snap := mustRun(t, engine, graphID, nil)
	if snap.Status != StatusFailed || !strings.Contains(snap.Error, "disk full") {
		t.Errorf("got status %s error %q", snap.Status, snap.Error)
	}
}

func TestEventsEmitted(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	reg := tool.NewRegistry(noopTool("noop"))
	engine := newTestEngine(t, reg, WithEmitter(buf))
	graphID := mustCreate(t, engine, Definition{
		Nodes:     []Node{{ID: "a", ToolName: "noop"}, {ID: "b", ToolName: "noop"}},
		Edges:     []Edge{{From: "a", To: "b"}},
		StartNode: "a",
	})

	snap := mustRun(t, engine, graphID, nil)

	var msgs []string
	for _, ev := range buf.GetHistory(snap.RunID) {
		msgs = append(msgs, fmt.Sprintf("%s:%s:%d", ev.Msg, ev.NodeID, ev.Step))
		if ev.GraphID != graphID {
			t.Errorf("event %s has graph %q", ev.Msg, ev.GraphID)
		}
	}
	want := []string{
		"run_started::0",
		"node_completed:a:1",
		"node_completed:b:2",
		"run_completed::2",
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestListGraphsAndRuns(t *testing.T) {
	engine := newTestEngine(t, tool.NewRegistry(noopTool("noop")))
	def := Definition{Nodes: []Node{{ID: "a", ToolName: "noop"}}, StartNode: "a"}
	g1 := mustCreate(t, engine, def)
	g2 := mustCreate(t, engine, def)

	if g1 == g2 {
		t.Fatal("graph ids must be unique")
	}
	if got := engine.ListGraphs(); len(got) != 2 {
		t.Errorf("ListGraphs = %v", got)
	}

	r1 := mustRun(t, engine, g1, nil)
	r2 := mustRun(t, engine, g2, nil)
	r3 := mustRun(t, engine, g1, nil)

	var ids []string
	for _, s := range engine.ListRuns(g1) {
		ids = append(ids, s.RunID)
	}
	if diff := cmp.Diff([]string{r1.RunID, r3.RunID}, ids); diff != "" {
		t.Errorf("ListRuns(g1) mismatch (-want +got):\n%s", diff)
	}
	if all := engine.ListRuns(""); len(all) != 3 || all[1].RunID != r2.RunID {
		t.Errorf("ListRuns(\"\") = %d runs", len(all))
	}
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(t, tool.NewRegistry(noopTool("noop")), WithClock(func() time.Time { return fixed }))
	graphID := mustCreate(t, engine, Definition{Nodes: []Node{{ID: "a", ToolName: "noop"}}, StartNode: "a"})

	snap := mustRun(t, engine, graphID, nil)
	if !snap.StartedAt.Equal(fixed) || !snap.FinishedAt.Equal(fixed) {
		t.Errorf("timestamps = %v / %v", snap.StartedAt, snap.FinishedAt)
	}
	if snap.Duration() != 0 {
		t.Errorf("Duration = %v, want 0", snap.Duration())
	}
	inst, _ := engine.GetGraph(graphID)
	if !inst.CreatedAt().Equal(fixed) {
		t.Errorf("CreatedAt = %v", inst.CreatedAt())
	}
}
