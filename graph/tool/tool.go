package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Tool is a named unit of work bound to a workflow node.
//
// The engine calls a node's tool with a snapshot of the run state and
// merges the returned map into it. A nil result means "no update".
// Tools must not retain input; it is a private copy and will not be
// observed by the engine after Call returns.
//
// Example implementation:
//
//	type countLines struct{}
//
//	func (countLines) Name() string { return "count_lines" }
//
//	func (countLines) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
//	    code, _ := input["code"].(string)
//	    return map[string]interface{}{"lines": strings.Count(code, "\n") + 1}, nil
//	}
type Tool interface {
	// Name returns the identifier nodes use to reference this tool.
	// Names are lowercase with underscores, e.g. "extract_functions".
	Name() string

	// Call executes the tool against the given state snapshot and returns
	// the partial state update.
	//
	// Implementations should check ctx.Err() before expensive work; the
	// engine cancels ctx when a tool timeout is configured and exceeded.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// CallFunc is the signature of a tool body.
type CallFunc func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

type funcTool struct {
	name string
	fn   CallFunc
}

func (f funcTool) Name() string { return f.name }

func (f funcTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	return f.fn(ctx, input)
}

// Func adapts a plain function into a Tool named name.
func Func(name string, fn CallFunc) Tool {
	return funcTool{name: name, fn: fn}
}

// ErrDuplicateTool is returned by Register when the name is already taken.
var ErrDuplicateTool = errors.New("tool already registered")

// Registry maps tool names to tools. It is the tool resolver handed to the
// engine and is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools. It panics on duplicate
// names, like MustRegister.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.MustRegister(t)
	}
	return r
}

// Register adds t under t.Name().
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	name := t.Name()
	if name == "" {
		return errors.New("tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
