package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/minigraph/graph/cond"
)

// Definition describes a workflow graph: its nodes, edges and start node.
//
// A Definition is plain data and may be decoded from JSON or built in code.
// The engine copies it on registration, so later changes by the caller do
// not affect registered graphs.
type Definition struct {
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	StartNode string `json:"start_node"`
}

// Validate checks structural well-formedness:
//   - at least one node
//   - node IDs are non-empty and unique, and every node names a tool
//   - every edge has a source
//   - the start node exists
//   - every edge condition compiles
//
// Edge endpoints are not required to name existing nodes; a dangling
// target is handled when the run reaches it (see MissingNodePolicy).
// All problems are reported together and the result matches ErrInvalidGraph.
func (d Definition) Validate() error {
	var problems []error

	if len(d.Nodes) == 0 {
		problems = append(problems, errors.New("graph has no nodes"))
	}

	seen := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		switch {
		case n.ID == "":
			problems = append(problems, fmt.Errorf("node %d: empty id", i))
		case seen[n.ID]:
			problems = append(problems, fmt.Errorf("node %q: duplicate id", n.ID))
		}
		seen[n.ID] = true
		if n.ToolName == "" {
			problems = append(problems, fmt.Errorf("node %q: empty tool name", n.ID))
		}
	}

	if d.StartNode == "" {
		problems = append(problems, errors.New("start node is empty"))
	} else if !seen[d.StartNode] {
		problems = append(problems, fmt.Errorf("start node %q is not a node of the graph", d.StartNode))
	}

	for i, e := range d.Edges {
		if e.From == "" {
			problems = append(problems, fmt.Errorf("edge %d: empty source", i))
		}
		if e.IsConditional() {
			if _, err := cond.Compile(e.Condition); err != nil {
				problems = append(problems, fmt.Errorf("edge %d (%s -> %s): %w", i, e.From, displayTarget(e.To), err))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.Error()
	}
	return &EngineError{
		Code:    CodeInvalidGraph,
		Message: strings.Join(msgs, "; "),
		Cause:   errors.Join(problems...),
	}
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	out := Definition{StartNode: d.StartNode}
	if d.Nodes != nil {
		out.Nodes = make([]Node, len(d.Nodes))
		copy(out.Nodes, d.Nodes)
	}
	if d.Edges != nil {
		out.Edges = make([]Edge, len(d.Edges))
		copy(out.Edges, d.Edges)
	}
	return out
}

func displayTarget(to string) string {
	if to == "" {
		return "END"
	}
	return to
}
