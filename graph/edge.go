package graph

// Edge is a directed, optionally conditional transition between nodes.
//
// Outgoing edges of a node are evaluated in the order they were declared
// and the first matching edge wins:
//
//	{From: "issues", To: "", Condition: "quality_score >= 80"} // stop when good enough
//	{From: "issues", To: "suggest"}                            // otherwise keep going
//
// An edge with an empty To is a terminal edge: taking it ends the run
// successfully. An edge with an empty Condition always matches.
type Edge struct {
	// From is the source node ID.
	From string `json:"from_node"`

	// To is the target node ID; empty means terminate the run.
	To string `json:"to_node,omitempty"`

	// Condition is a boolean expression over the run state; empty means
	// unconditional. See package cond for the language.
	Condition string `json:"condition,omitempty"`
}

// IsTerminal reports whether taking the edge ends the run.
func (e Edge) IsTerminal() bool {
	return e.To == ""
}

// IsConditional reports whether the edge has a condition.
func (e Edge) IsConditional() bool {
	return e.Condition != ""
}
