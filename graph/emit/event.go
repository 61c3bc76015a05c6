package emit

// Event messages emitted by the engine.
const (
	MsgGraphCreated   = "graph_created"
	MsgRunStarted     = "run_started"
	MsgNodeCompleted  = "node_completed"
	MsgConditionError = "condition_error"
	MsgNodeMissing    = "node_missing"
	MsgStepLimit      = "step_limit_reached"
	MsgRunCompleted   = "run_completed"
	MsgRunFailed      = "run_failed"
)

// Event represents an observability event emitted during workflow execution.
type Event struct {
	// RunID identifies the run that emitted this event.
	// Empty for graph-level events.
	RunID string

	// GraphID identifies the graph instance the run executes.
	GraphID string

	// Step is the number of completed steps when the event was emitted.
	// Zero for run-level events emitted before the first step.
	Step int

	// NodeID identifies the node the event concerns.
	// Empty string for run-level events.
	NodeID string

	// Msg is the event type, one of the Msg* constants.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "tool": tool name bound to the node
	//   - "duration_ms": tool execution time in milliseconds
	//   - "error": error description (marks the event as a failure)
	//   - "condition": edge condition source
	//   - "next": id of the node selected by edge resolution
	Meta map[string]interface{}
}

// IsError reports whether the event carries an error description.
func (e Event) IsError() bool {
	_, ok := e.Meta["error"]
	return ok
}
