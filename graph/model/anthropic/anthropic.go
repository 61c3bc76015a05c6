// Package anthropic adapts Anthropic's Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/minigraph/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "claude-3-5-sonnet-20241022"

// DefaultMaxTokens bounds the length of each reply.
const DefaultMaxTokens = 1024

func init() {
	model.RegisterProvider("anthropic", func(apiKey, modelName string) (model.ChatModel, error) {
		return NewChatModel(apiKey, modelName), nil
	})
}

// ChatModel implements model.ChatModel for Claude.
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
//
// System messages are sent as the request's system prompt.
type ChatModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewChatModel creates a ChatModel. opts are passed to the SDK client
// (base URL, retries, HTTP client).
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)

	return &ChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
	}
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SystemPrompt(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return model.ChatOut{}, fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
		}
		return model.ChatOut{}, fmt.Errorf("anthropic: %w", err)
	}
	return convertResponse(msg)
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		param := &anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: inputSchema(t.Schema),
		}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: param})
	}
	return out
}

func inputSchema(schema map[string]interface{}) anthropic.ToolInputSchemaParam {
	param := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	switch required := schema["required"].(type) {
	case []string:
		param.Required = required
	case []interface{}:
		for _, r := range required {
			if s, ok := r.(string); ok {
				param.Required = append(param.Required, s)
			}
		}
	}
	return param
}

func convertResponse(msg *anthropic.Message) (model.ChatOut, error) {
	var out model.ChatOut
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var input map[string]interface{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: decode input of tool %q: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}
	return out, nil
}
