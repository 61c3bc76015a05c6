package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/minigraph/graph/cond"
	"github.com/dshills/minigraph/graph/emit"
)

// drive advances rc from its start node to a terminal status.
//
// Each iteration records the node in the history, resolves and calls its
// tool, merges the update, then picks the next node from the outgoing
// edges. Any failure ends the run as failed with the error in state;
// updates from earlier steps are kept.
func (e *Engine) drive(ctx context.Context, rc *RunContext) {
	inst := rc.Instance()
	if err := rc.transition(StatusRunning, e.cfg.now()); err != nil {
		return
	}
	e.cfg.metrics.runStarted()
	e.emit(rc, 0, "", emit.MsgRunStarted, map[string]interface{}{
		"start_node": inst.StartNode(),
		"max_steps":  rc.maxSteps,
	})

	current := inst.StartNode()
	for current != "" && rc.steps() < rc.maxSteps {
		rc.visit(current)

		if err := ctx.Err(); err != nil {
			e.failRun(rc, &EngineError{
				Code:    CodeCancelled,
				Message: fmt.Sprintf("run cancelled before node %q: %v", current, err),
				Cause:   err,
			})
			return
		}

		node, ok := inst.GetNode(current)
		if !ok {
			e.emit(rc, rc.steps(), current, emit.MsgNodeMissing, map[string]interface{}{
				"policy": e.cfg.missingNode.String(),
			})
			if e.cfg.missingNode == MissingNodeFail {
				e.failRun(rc, &EngineError{
					Code:    CodeMissingNode,
					Message: fmt.Sprintf("node %q is not part of graph %s", current, inst.ID()),
				})
				return
			}
			current = ""
			break
		}

		next, err := e.step(ctx, rc, node)
		if err != nil {
			e.failRun(rc, err)
			return
		}
		current = next
	}

	if current != "" {
		e.cfg.metrics.stepLimitHit()
		e.emit(rc, rc.steps(), current, emit.MsgStepLimit, map[string]interface{}{
			"max_steps": rc.maxSteps,
			"reason":    (&EngineError{Code: CodeMaxStepsExceeded, Message: fmt.Sprintf("stopped before %q after %d steps", current, rc.maxSteps)}).Error(),
		})
	}

	_ = rc.transition(StatusCompleted, e.cfg.now())
	e.cfg.metrics.runFinished(StatusCompleted)
	e.emit(rc, rc.steps(), "", emit.MsgRunCompleted, map[string]interface{}{
		"status": string(StatusCompleted),
	})
}

// step executes one node and returns the next node ID ("" to stop).
func (e *Engine) step(ctx context.Context, rc *RunContext, node Node) (string, error) {
	t, ok := e.tools.Lookup(node.ToolName)
	if !ok {
		return "", &EngineError{
			Code:    CodeUnknownTool,
			Message: fmt.Sprintf("node %q references unregistered tool %q", node.ID, node.ToolName),
		}
	}

	start := time.Now()
	update, err := callTool(ctx, t, rc.stateCopy(), e.cfg.toolTimeout)
	latency := time.Since(start)
	e.cfg.metrics.recordStep(node.ID, latency, err)
	if err != nil {
		toolErr := &ToolError{NodeID: node.ID, Tool: node.ToolName, Cause: err}
		return "", &EngineError{Code: CodeToolFailed, Message: toolErr.Error(), Cause: toolErr}
	}

	step := rc.completeStep(update)

	if e.cfg.store != nil {
		if err := e.cfg.store.SaveStep(ctx, rc.ID(), step, node.ID, rc.stateCopy()); err != nil {
			return "", &EngineError{
				Code:    CodeJournal,
				Message: fmt.Sprintf("step %d (node %q): %v", step, node.ID, err),
				Cause:   err,
			}
		}
	}

	next := e.nextNode(rc, node.ID, step)

	meta := map[string]interface{}{
		"tool":        node.ToolName,
		"duration_ms": latency.Milliseconds(),
		"updated":     len(update),
	}
	if next != "" {
		meta["next"] = next
	}
	e.emit(rc, step, node.ID, emit.MsgNodeCompleted, meta)

	return next, nil
}

// nextNode scans the outgoing edges of nodeID in declared order against
// the current state and returns the target of the first match. Edges
// whose condition fails to evaluate are reported and skipped. A matching
// terminal edge, no match, or no edges all yield "".
func (e *Engine) nextNode(rc *RunContext, nodeID string, step int) string {
	routes := rc.Instance().routes(nodeID)
	if len(routes) == 0 {
		return ""
	}

	var (
		scope    *cond.Scope
		scopeErr error
		prepared bool
	)
	for _, r := range routes {
		if r.cond != nil {
			if !prepared {
				scope, scopeErr = cond.NewScope(rc.stateCopy())
				prepared = true
			}
			matched := false
			err := scopeErr
			if err == nil {
				matched, err = r.cond.EvalScope(scope)
			}
			if err != nil {
				e.cfg.metrics.conditionError(nodeID)
				condErr := &EngineError{
					Code:    CodeConditionEvaluation,
					Message: fmt.Sprintf("edge %s -> %s: %v", r.edge.From, displayTarget(r.edge.To), err),
					Cause:   err,
				}
				e.emit(rc, step, nodeID, emit.MsgConditionError, map[string]interface{}{
					"condition": r.edge.Condition,
					"error":     condErr.Error(),
				})
				continue
			}
			if !matched {
				continue
			}
		}
		return r.edge.To
	}
	return ""
}

func (e *Engine) failRun(rc *RunContext, err error) {
	rc.fail(err, e.cfg.now())
	e.cfg.metrics.runFinished(StatusFailed)
	e.emit(rc, rc.steps(), "", emit.MsgRunFailed, map[string]interface{}{
		"status": string(StatusFailed),
		"error":  err.Error(),
	})
}

func (e *Engine) emit(rc *RunContext, step int, nodeID, msg string, meta map[string]interface{}) {
	e.cfg.emitter.Emit(emit.Event{
		RunID:   rc.ID(),
		GraphID: rc.Instance().ID(),
		Step:    step,
		NodeID:  nodeID,
		Msg:     msg,
		Meta:    meta,
	})
}
