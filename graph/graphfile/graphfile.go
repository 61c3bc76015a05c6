// Package graphfile loads graph definitions from JSON or HCL files.
//
// JSON files hold a graph.Definition as served by the HTTP API. HCL files
// use blocks:
//
//	start = "extract"
//
//	node "extract" {
//	  tool = "extract_functions"
//	}
//
//	edge {
//	  from = "issues"
//	  when = quality_score >= 80
//	}
//
//	edge {
//	  from = "issues"
//	  to   = "suggest"
//	}
//
// An edge without "to" is terminal. "when" is written as a bare expression
// and its source text becomes the edge condition; a quoted string is also
// accepted.
package graphfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/dshills/minigraph/graph"
)

// ErrUnsupportedFormat is returned for files that are neither .json nor .hcl.
var ErrUnsupportedFormat = errors.New("unsupported graph file format")

// Load reads and parses the graph file at path.
func Load(path string) (graph.Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return graph.Definition{}, fmt.Errorf("read graph file: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes src, choosing the format from filename's extension.
func Parse(src []byte, filename string) (graph.Definition, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return parseJSON(src)
	case ".hcl":
		return parseHCL(src, filename)
	default:
		return graph.Definition{}, fmt.Errorf("%w: %q (want .json or .hcl)", ErrUnsupportedFormat, filename)
	}
}

func parseJSON(src []byte) (graph.Definition, error) {
	var def graph.Definition
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return graph.Definition{}, fmt.Errorf("decode json graph: %w", err)
	}
	return def, nil
}

type hclFile struct {
	Start string    `hcl:"start"`
	Nodes []hclNode `hcl:"node,block"`
	Edges []hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	ID   string `hcl:"id,label"`
	Tool string `hcl:"tool"`
}

type hclEdge struct {
	From string         `hcl:"from"`
	To   string         `hcl:"to,optional"`
	When hcl.Expression `hcl:"when,optional"`
}

func parseHCL(src []byte, filename string) (graph.Definition, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return graph.Definition{}, fmt.Errorf("parse hcl graph: %w", diags)
	}

	var doc hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &doc); diags.HasErrors() {
		return graph.Definition{}, fmt.Errorf("decode hcl graph: %w", diags)
	}

	def := graph.Definition{
		StartNode: doc.Start,
		Nodes:     make([]graph.Node, 0, len(doc.Nodes)),
		Edges:     make([]graph.Edge, 0, len(doc.Edges)),
	}
	for _, n := range doc.Nodes {
		def.Nodes = append(def.Nodes, graph.Node{ID: n.ID, ToolName: n.Tool})
	}
	for _, e := range doc.Edges {
		condition, err := conditionText(e.When, src)
		if err != nil {
			return graph.Definition{}, fmt.Errorf("edge from %q: %w", e.From, err)
		}
		def.Edges = append(def.Edges, graph.Edge{From: e.From, To: e.To, Condition: condition})
	}
	return def, nil
}

// conditionText returns the condition an HCL "when" attribute describes.
// gohcl fills absent optional expressions with a synthetic null expression
// that is not part of the parsed syntax tree.
func conditionText(expr hcl.Expression, src []byte) (string, error) {
	if expr == nil {
		return "", nil
	}
	if _, ok := expr.(hclsyntax.Expression); !ok {
		return "", nil
	}

	if len(expr.Variables()) == 0 {
		v, diags := expr.Value(nil)
		if !diags.HasErrors() && v.IsKnown() && !v.IsNull() && v.Type() == cty.String {
			return strings.TrimSpace(v.AsString()), nil
		}
	}

	text := strings.TrimSpace(string(expr.Range().SliceBytes(src)))
	if text == "" {
		return "", errors.New("empty when expression")
	}
	return text, nil
}
