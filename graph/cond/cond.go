// Package cond implements the edge condition language.
//
// Conditions are HCL native-syntax expressions evaluated against the run
// state. Every top-level state key that is a valid identifier is a
// variable, and the whole state is also reachable as "state", so keys that
// are not identifiers can be read with an index:
//
//	quality_score >= 80
//	length(issues) == 0 && !contains(flags, "skip")
//	state["retry count"] < 3
//
// Only a fixed set of pure functions is available (see Functions). There
// are no assignments, no I/O and no access to anything but the state.
package cond

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

var (
	// ErrSyntax is returned by Compile for malformed expressions.
	ErrSyntax = errors.New("condition syntax error")

	// ErrFunctionNotAllowed is returned by Compile when the expression
	// calls a function outside the allowed set.
	ErrFunctionNotAllowed = errors.New("condition function not allowed")

	// ErrEvaluation is returned by Eval when the expression cannot be
	// evaluated against the state (unknown variable, type mismatch, ...).
	ErrEvaluation = errors.New("condition evaluation failed")

	// ErrNotBool is returned by Eval when the result is not a boolean.
	ErrNotBool = errors.New("condition result is not a bool")
)

// StateVar is the variable bound to the whole state object.
const StateVar = "state"

var functions = map[string]function.Function{
	"abs":      stdlib.AbsoluteFunc,
	"coalesce": stdlib.CoalesceFunc,
	"contains": stdlib.ContainsFunc,
	"keys":     stdlib.KeysFunc,
	"length":   stdlib.LengthFunc,
	"lower":    stdlib.LowerFunc,
	"max":      stdlib.MaxFunc,
	"min":      stdlib.MinFunc,
	"upper":    stdlib.UpperFunc,
}

// Functions returns the names of the functions conditions may call, sorted.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Condition is a compiled condition expression. It is immutable and safe
// for concurrent use.
type Condition struct {
	src  string
	expr hclsyntax.Expression
}

// Compile parses src and checks that it only calls allowed functions.
func Compile(src string) (*Condition, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	expr, diags := hclsyntax.ParseExpression([]byte(src), "condition", hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, diags.Error())
	}

	var disallowed []string
	hclsyntax.VisitAll(expr, func(node hclsyntax.Node) hcl.Diagnostics {
		if call, ok := node.(*hclsyntax.FunctionCallExpr); ok {
			if _, ok := functions[call.Name]; !ok {
				disallowed = append(disallowed, call.Name)
			}
		}
		return nil
	})
	if len(disallowed) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotAllowed, strings.Join(disallowed, ", "))
	}

	return &Condition{src: src, expr: expr}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Condition {
	c, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the source text of the condition.
func (c *Condition) String() string {
	return c.src
}

// Eval evaluates the condition against state.
func (c *Condition) Eval(state map[string]interface{}) (bool, error) {
	scope, err := NewScope(state)
	if err != nil {
		return false, err
	}
	return c.EvalScope(scope)
}

// EvalScope evaluates the condition in a prepared scope. Use it to
// evaluate several conditions against the same state without converting
// the state each time.
func (c *Condition) EvalScope(scope *Scope) (bool, error) {
	val, diags := c.expr.Value(scope.ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("%w: %s", ErrEvaluation, diags.Error())
	}
	if !val.IsKnown() || val.IsNull() {
		return false, fmt.Errorf("%w: result is null", ErrNotBool)
	}
	if !val.Type().Equals(cty.Bool) {
		return false, fmt.Errorf("%w: got %s", ErrNotBool, val.Type().FriendlyName())
	}
	return val.True(), nil
}

// Scope is a state snapshot converted for evaluation.
type Scope struct {
	ctx *hcl.EvalContext
}

// NewScope converts state into evaluation variables. State values must be
// JSON-encodable.
func NewScope(state map[string]interface{}) (*Scope, error) {
	obj, err := toValue(state)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]cty.Value)
	for key, v := range obj.AsValueMap() {
		if hclsyntax.ValidIdentifier(key) {
			vars[key] = v
		}
	}
	vars[StateVar] = obj

	return &Scope{ctx: &hcl.EvalContext{Variables: vars, Functions: functions}}, nil
}

func toValue(state map[string]interface{}) (cty.Value, error) {
	if state == nil {
		state = map[string]interface{}{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: encode state: %v", ErrEvaluation, err)
	}
	ty, err := ctyjson.ImpliedType(data)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: infer state type: %v", ErrEvaluation, err)
	}
	val, err := ctyjson.Unmarshal(data, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%w: convert state: %v", ErrEvaluation, err)
	}
	return val, nil
}
