// Package model provides the chat-model abstraction used by LLM-backed
// tools, plus adapters for Anthropic, OpenAI and Google in subpackages.
//
// Providers register themselves on import, so a binary selects the ones
// it supports with blank imports and picks one at runtime by name:
//
//	import (
//	    _ "github.com/dshills/minigraph/graph/model/anthropic"
//	    _ "github.com/dshills/minigraph/graph/model/openai"
//	)
//
//	m, err := model.NewFromConfig("anthropic", os.Getenv("ANTHROPIC_API_KEY"), "")
package model

import "context"

// ChatModel is implemented by every LLM provider adapter.
//
// Implementations convert Messages and ToolSpecs to the provider's wire
// format, return the reply as a ChatOut and respect ctx cancellation.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is a single turn of a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Standard roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a function the model may ask to call.
//
//	ToolSpec{
//	    Name:        "lookup_symbol",
//	    Description: "Find a function definition by name",
//	    Schema: map[string]interface{}{
//	        "type": "object",
//	        "properties": map[string]interface{}{
//	            "name": map[string]interface{}{"type": "string"},
//	        },
//	        "required": []string{"name"},
//	    },
//	}
type ToolSpec struct {
	Name        string
	Description string

	// Schema is a JSON Schema object describing the input. Optional.
	Schema map[string]interface{}
}

// ChatOut is a model reply: text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	// ID is the provider's call identifier, when it assigns one.
	ID    string
	Name  string
	Input map[string]interface{}
}

// SystemPrompt joins the content of all system messages with blank lines
// and returns it with the remaining messages. Providers that take the
// system prompt as a separate parameter use it.
func SystemPrompt(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))

	for _, msg := range messages {
		if msg.Role != RoleSystem {
			rest = append(rest, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, rest
}
