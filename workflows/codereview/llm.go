package codereview

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/minigraph/graph"
	"github.com/dshills/minigraph/graph/model"
	"github.com/dshills/minigraph/graph/tool"
)

// ToolLLMSuggest is the name of the model-backed suggestion tool.
const ToolLLMSuggest = "llm_suggest"

const suggestPrompt = `You are a code reviewer. Suggest concrete improvements for the code below.
Reply with one suggestion per line and nothing else.`

// LLMSuggestTool returns a tool that asks m for improvement suggestions in
// place of SuggestImprovements. Each non-empty reply line, with any list
// marker stripped, becomes one suggestion.
func LLMSuggestTool(m model.ChatModel) tool.Tool {
	return tool.Func(ToolLLMSuggest, func(ctx context.Context, in map[string]interface{}) (map[string]interface{}, error) {
		state := graph.State(in)

		out, err := m.Chat(ctx, []model.Message{
			{Role: model.RoleSystem, Content: suggestPrompt},
			{Role: model.RoleUser, Content: reviewRequest(state)},
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("request suggestions: %w", err)
		}

		suggestions := parseSuggestions(out.Text)
		return map[string]interface{}{
			KeySuggestions: suggestions,
			KeyLog:         appendLog(state, fmt.Sprintf("Model made %d suggestions", len(suggestions))),
		}, nil
	})
}

// DefinitionWithLLM returns Definition with the suggest node bound to
// ToolLLMSuggest.
func DefinitionWithLLM() graph.Definition {
	def := Definition()
	for i := range def.Nodes {
		if def.Nodes[i].ToolName == ToolSuggestImprovements {
			def.Nodes[i].ToolName = ToolLLMSuggest
		}
	}
	return def
}

func reviewRequest(state graph.State) string {
	var sb strings.Builder
	code, _ := state.String(KeyCode)
	sb.WriteString("Code:\n")
	sb.WriteString(code)
	sb.WriteString("\n")

	if functions, ok := state.Strings(KeyFunctions); ok && len(functions) > 0 {
		fmt.Fprintf(&sb, "\nFunctions: %s\n", strings.Join(functions, ", "))
	}
	if complexity, ok := state.Int(KeyComplexity); ok {
		fmt.Fprintf(&sb, "Complexity: %d\n", complexity)
	}
	if issues, ok := state.Strings(KeyIssues); ok && len(issues) > 0 {
		fmt.Fprintf(&sb, "Known issues: %s\n", strings.Join(issues, "; "))
	}
	return sb.String()
}

func parseSuggestions(text string) []string {
	suggestions := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimSpace(line)
		if line != "" {
			suggestions = append(suggestions, line)
		}
	}
	return suggestions
}
