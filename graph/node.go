package graph

// Node is a named step in a workflow graph, bound to a tool by name.
//
// The tool name is a reference into the engine's ToolResolver; it is not
// checked when the graph is registered, so a graph may be created before
// its tools exist. Resolution happens when the node is visited.
type Node struct {
	// ID identifies the node within its graph. Must be non-empty and unique.
	ID string `json:"id"`

	// ToolName is the name the ToolResolver looks the tool up by.
	ToolName string `json:"tool_name"`
}
