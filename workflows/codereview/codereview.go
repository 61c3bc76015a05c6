// Package codereview is the canonical example workflow: a code-review loop
// that extracts functions, measures complexity and detects issues, then
// suggests improvements and re-checks until the quality score reaches the
// threshold.
//
//	extract -> complexity -> issues -[quality_score >= 80]-> END
//	                           |
//	                           +--> suggest -> complexity
package codereview

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dshills/minigraph/graph"
	"github.com/dshills/minigraph/graph/tool"
)

// Tool names.
const (
	ToolExtractFunctions    = "extract_functions"
	ToolCheckComplexity     = "check_complexity"
	ToolDetectIssues        = "detect_issues"
	ToolSuggestImprovements = "suggest_improvements"
)

// State keys read and written by the tools.
const (
	KeyCode         = "code"
	KeyLog          = "log"
	KeyFunctions    = "functions"
	KeyComplexity   = "complexity"
	KeyIssues       = "issues"
	KeyQualityScore = "quality_score"
	KeySuggestions  = "suggestions"
)

// QualityThreshold is the score at which the review loop stops.
const QualityThreshold = 80

// qualityStep is added to the score on every issue-detection pass.
const qualityStep = 20

// Definition returns the code-review graph.
func Definition() graph.Definition {
	return graph.Definition{
		Nodes: []graph.Node{
			{ID: "extract", ToolName: ToolExtractFunctions},
			{ID: "complexity", ToolName: ToolCheckComplexity},
			{ID: "issues", ToolName: ToolDetectIssues},
			{ID: "suggest", ToolName: ToolSuggestImprovements},
		},
		Edges: []graph.Edge{
			{From: "extract", To: "complexity"},
			{From: "complexity", To: "issues"},
			{From: "issues", Condition: fmt.Sprintf("%s >= %d", KeyQualityScore, QualityThreshold)},
			{From: "issues", To: "suggest"},
			{From: "suggest", To: "complexity"},
		},
		StartNode: "extract",
	}
}

// Tools returns the review tools.
func Tools() []tool.Tool {
	return []tool.Tool{
		tool.Func(ToolExtractFunctions, ExtractFunctions),
		tool.Func(ToolCheckComplexity, CheckComplexity),
		tool.Func(ToolDetectIssues, DetectIssues),
		tool.Func(ToolSuggestImprovements, SuggestImprovements),
	}
}

// Register adds the review tools to reg.
func Register(reg *tool.Registry) error {
	for _, t := range Tools() {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return nil
}

var (
	pyDef  = regexp.MustCompile(`(?m)^[ \t]*(?:async[ \t]+)?def[ \t]+([A-Za-z_]\w*)`)
	goFunc = regexp.MustCompile(`(?m)^func[ \t]+(?:\([^)]*\)[ \t]*)?([A-Za-z_]\w*)`)

	branchKeyword = regexp.MustCompile(`\b(?:if|elif|else|for|while|case|switch|select|except|catch|and|or)\b|&&|\|\|`)
)

// ExtractFunctions lists the Python and Go function names defined in
// state["code"], in source order.
func ExtractFunctions(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	state := graph.State(in)
	code, _ := state.String(KeyCode)

	functions := []string{}
	for _, re := range []*regexp.Regexp{pyDef, goFunc} {
		for _, m := range re.FindAllStringSubmatch(code, -1) {
			functions = append(functions, m[1])
		}
	}

	return map[string]interface{}{
		KeyFunctions: functions,
		KeyLog:       appendLog(state, fmt.Sprintf("Extracted %d functions", len(functions))),
	}, nil
}

// CheckComplexity scores state["code"] as one plus the number of branch
// keywords and boolean operators it contains.
func CheckComplexity(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	state := graph.State(in)
	code, _ := state.String(KeyCode)
	complexity := 1 + len(branchKeyword.FindAllStringIndex(code, -1))

	return map[string]interface{}{
		KeyComplexity: complexity,
		KeyLog:        appendLog(state, fmt.Sprintf("Checked complexity: %d", complexity)),
	}, nil
}

// DetectIssues raises the quality score by 20, capped at 100, and reports
// a style issue while the score is below the threshold.
func DetectIssues(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	state := graph.State(in)
	score, _ := state.Int(KeyQualityScore)

	score += qualityStep
	if score > 100 {
		score = 100
	}

	issues := []string{}
	if score < QualityThreshold {
		issues = append(issues, "line too long")
	}

	return map[string]interface{}{
		KeyIssues:       issues,
		KeyQualityScore: score,
		KeyLog:          appendLog(state, fmt.Sprintf("Detected issues. Quality: %d", score)),
	}, nil
}

// SuggestImprovements proposes refactoring the first extracted function.
func SuggestImprovements(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	state := graph.State(in)

	target := "code"
	if functions, ok := state.Strings(KeyFunctions); ok && len(functions) > 0 {
		target = functions[0]
	}

	return map[string]interface{}{
		KeySuggestions: []string{"Refactor " + target},
		KeyLog:         appendLog(state, "Made suggestions"),
	}, nil
}

// appendLog returns a new log slice with entry appended. The state's own
// slice is never modified.
func appendLog(state graph.State, entry string) []string {
	prev, _ := state.Strings(KeyLog)
	out := make([]string, 0, len(prev)+1)
	out = append(out, prev...)
	return append(out, entry)
}
