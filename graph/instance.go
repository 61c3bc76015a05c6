package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/minigraph/graph/cond"
)

// Instance is a registered graph: a private copy of a Definition indexed
// for constant-time node and outgoing-edge lookup. It has no mutation API
// and is shared read-only by every run of the graph.
type Instance struct {
	id        string
	def       Definition
	createdAt time.Time

	nodes    map[string]Node
	outgoing map[string][]Edge
	// conds holds the compiled condition of each outgoing edge, parallel to
	// outgoing; nil for unconditional edges.
	conds map[string][]*cond.Condition
}

// NewInstance validates def and builds an Instance with a fresh ID.
// The engine calls this from CreateGraph; it is exported for callers that
// want to inspect a graph's structure without registering it.
func NewInstance(def Definition) (*Instance, error) {
	return newInstance(def, time.Now())
}

func newInstance(def Definition, now time.Time) (*Instance, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	def = def.Clone()
	inst := &Instance{
		id:        uuid.NewString(),
		def:       def,
		createdAt: now,
		nodes:     make(map[string]Node, len(def.Nodes)),
		outgoing:  make(map[string][]Edge),
		conds:     make(map[string][]*cond.Condition),
	}

	for _, n := range def.Nodes {
		inst.nodes[n.ID] = n
	}
	for _, e := range def.Edges {
		var c *cond.Condition
		if e.IsConditional() {
			// Validate has already compiled every condition once.
			c = cond.MustCompile(e.Condition)
		}
		inst.outgoing[e.From] = append(inst.outgoing[e.From], e)
		inst.conds[e.From] = append(inst.conds[e.From], c)
	}

	return inst, nil
}

// ID returns the generated graph ID.
func (g *Instance) ID() string { return g.id }

// StartNode returns the ID of the node runs begin at.
func (g *Instance) StartNode() string { return g.def.StartNode }

// CreatedAt returns when the graph was registered.
func (g *Instance) CreatedAt() time.Time { return g.createdAt }

// Definition returns a copy of the graph's definition.
func (g *Instance) Definition() Definition { return g.def.Clone() }

// GetNode returns the node with the given ID.
func (g *Instance) GetNode(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// OutgoingEdges returns the edges leaving id in declared order. The result
// is never nil and may be modified by the caller.
func (g *Instance) OutgoingEdges(id string) []Edge {
	edges := g.outgoing[id]
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}

// route pairs an outgoing edge with its compiled condition.
type route struct {
	edge Edge
	cond *cond.Condition
}

func (g *Instance) routes(id string) []route {
	edges := g.outgoing[id]
	conds := g.conds[id]
	out := make([]route, len(edges))
	for i := range edges {
		out[i] = route{edge: edges[i], cond: conds[i]}
	}
	return out
}
