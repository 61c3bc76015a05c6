// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/minigraph/graph/model"
)

// DefaultModel is used when no model name is given.
const DefaultModel = "gemini-2.5-flash"

func init() {
	model.RegisterProvider("google", func(apiKey, modelName string) (model.ChatModel, error) {
		return NewChatModel(context.Background(), apiKey, modelName)
	})
}

// ChatModel implements model.ChatModel for Gemini.
//
//	m, err := google.NewChatModel(ctx, os.Getenv("GOOGLE_API_KEY"), "")
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
// System messages become the model's system instruction; earlier turns are
// sent as chat history and the last turn as the new message. Replies
// blocked by safety filters are reported as *SafetyFilterError.
type ChatModel struct {
	modelName string
	client    *genai.Client
	gen       generator
}

// generator is the slice of the Gemini API the adapter uses.
type generator interface {
	generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error)
}

type request struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
	tools   []*genai.Tool
}

// NewChatModel creates a ChatModel with its own Gemini client. opts are
// appended to the API key option.
func NewChatModel(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &ChatModel{
		modelName: modelName,
		client:    client,
		gen:       &sdkGenerator{client: client, modelName: modelName},
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SystemPrompt(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: at least one user or assistant message is required")
	}

	req := request{
		system:  system,
		history: convertHistory(conversation[:len(conversation)-1]),
		parts:   []genai.Part{genai.Text(conversation[len(conversation)-1].Content)},
	}
	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}

	resp, err := m.gen.generate(ctx, req)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.ChatOut{}, safetyError(blocked)
		}
		return model.ChatOut{}, fmt.Errorf("google: %w", err)
	}
	return convertResponse(resp), nil
}

type sdkGenerator struct {
	client    *genai.Client
	modelName string
}

func (g *sdkGenerator) generate(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
	gm := g.client.GenerativeModel(g.modelName)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	gm.Tools = req.tools

	session := gm.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

func convertHistory(messages []model.Message) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertSchema maps a JSON Schema object onto genai.Schema, recursing
// through properties and array items.
func convertSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}

	out := &genai.Schema{Type: genai.TypeObject}
	if typ, ok := schema["type"].(string); ok {
		out.Type = convertType(typ)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				out.Properties[name] = convertSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = convertSchema(items)
	}
	switch required := schema["required"].(type) {
	case []string:
		out.Required = append([]string(nil), required...)
	case []interface{}:
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func convertType(typ string) genai.Type {
	switch typ {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out
}

// SafetyFilterError reports a prompt or reply blocked by Gemini's safety
// filters.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	if e.category == "" {
		return "content blocked by safety filter: " + e.reason
	}
	return "content blocked by safety filter: " + e.category
}

// Category returns the harm category that triggered the block, if known.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string { return e.reason }

func safetyError(blocked *genai.BlockedError) *SafetyFilterError {
	out := &SafetyFilterError{reason: "blocked"}
	if blocked.PromptFeedback != nil {
		out.reason = blocked.PromptFeedback.BlockReason.String()
		out.category = blockedCategory(blocked.PromptFeedback.SafetyRatings)
	}
	if blocked.Candidate != nil {
		out.reason = blocked.Candidate.FinishReason.String()
		if c := blockedCategory(blocked.Candidate.SafetyRatings); c != "" {
			out.category = c
		}
	}
	return out
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return ""
}
