package graph

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every lookup failure (unknown graph or run).
var ErrNotFound = errors.New("not found")

var (
	// ErrGraphNotFound indicates an unknown graph ID.
	ErrGraphNotFound = fmt.Errorf("graph %w", ErrNotFound)

	// ErrRunNotFound indicates an unknown run ID.
	ErrRunNotFound = fmt.Errorf("run %w", ErrNotFound)
)

var (
	// ErrInvalidGraph indicates a definition that failed validation.
	ErrInvalidGraph = errors.New("invalid graph definition")

	// ErrUnknownTool indicates a node whose tool is not registered.
	// Fatal to the run.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolFailed indicates a tool returned an error, panicked or timed
	// out. Fatal to the run.
	ErrToolFailed = errors.New("tool failed")

	// ErrConditionEvaluation indicates an edge condition could not be
	// evaluated. The edge is skipped and the run continues.
	ErrConditionEvaluation = errors.New("condition evaluation failed")

	// ErrMissingNode indicates the run reached a node ID that is not part
	// of the graph. Fatal only under MissingNodeFail.
	ErrMissingNode = errors.New("missing node")

	// ErrMaxStepsExceeded indicates the run hit its step ceiling. The run
	// still completes; the error is only reported through events.
	ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

	// ErrJournal indicates the step journal rejected a write. Fatal to the run.
	ErrJournal = errors.New("step journal write failed")
)

// Error codes carried by EngineError.
const (
	CodeGraphNotFound       = "GRAPH_NOT_FOUND"
	CodeRunNotFound         = "RUN_NOT_FOUND"
	CodeInvalidGraph        = "INVALID_GRAPH"
	CodeUnknownTool         = "UNKNOWN_TOOL"
	CodeToolFailed          = "TOOL_FAILED"
	CodeConditionEvaluation = "CONDITION_EVALUATION"
	CodeMissingNode         = "MISSING_NODE"
	CodeMaxStepsExceeded    = "MAX_STEPS_EXCEEDED"
	CodeJournal             = "JOURNAL_FAILED"
	CodeCancelled           = "CANCELLED"
)

var codeSentinels = map[string]error{
	CodeGraphNotFound:       ErrGraphNotFound,
	CodeRunNotFound:         ErrRunNotFound,
	CodeInvalidGraph:        ErrInvalidGraph,
	CodeUnknownTool:         ErrUnknownTool,
	CodeToolFailed:          ErrToolFailed,
	CodeConditionEvaluation: ErrConditionEvaluation,
	CodeMissingNode:         ErrMissingNode,
	CodeMaxStepsExceeded:    ErrMaxStepsExceeded,
	CodeJournal:             ErrJournal,
}

// EngineError is the structured error returned by the engine and recorded
// in failed runs.
//
// errors.Is matches the sentinel for Code (so an EngineError with
// CodeGraphNotFound matches both ErrGraphNotFound and ErrNotFound) and
// anything in the Cause chain.
type EngineError struct {
	// Code is a machine-readable error code, one of the Code* constants.
	Code string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e.Code.
func (e *EngineError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && errors.Is(sentinel, target)
}

// ToolError wraps a failure raised by a tool.
type ToolError struct {
	NodeID string
	Tool   string
	Cause  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("node %q tool %q: %v", e.NodeID, e.Tool, e.Cause)
}

// Unwrap returns the tool's error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// errPanic is wrapped into a ToolError when a tool panics.
type errPanic struct {
	value interface{}
}

func (e errPanic) Error() string {
	return fmt.Sprintf("tool panicked: %v", e.value)
}
