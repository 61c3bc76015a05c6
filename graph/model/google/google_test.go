package google

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/go-cmp/cmp"

	"github.com/dshills/minigraph/graph/model"
)

type fakeGenerator struct {
	resp *genai.GenerateContentResponse
	err  error
	got  request
}

func (f *fakeGenerator) generate(_ context.Context, req request) (*genai.GenerateContentResponse, error) {
	f.got = req
	return f.resp, f.err
}

func newFakeModel(gen *fakeGenerator) *ChatModel {
	return &ChatModel{modelName: DefaultModel, gen: gen}
}

func TestChat(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []genai.Part{
				genai.Text("first"),
				genai.Text("second"),
				genai.FunctionCall{Name: "lookup", Args: map[string]any{"name": "main"}},
			}},
		}},
	}}

	out, err := newFakeModel(gen).Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "You review code."},
		{Role: model.RoleUser, Content: "hello"},
		{Role: model.RoleAssistant, Content: "hi"},
		{Role: model.RoleUser, Content: "find main"},
	}, []model.ToolSpec{{Name: "lookup", Schema: map[string]interface{}{"type": "object"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := model.ChatOut{
		Text:      "first\nsecond",
		ToolCalls: []model.ToolCall{{Name: "lookup", Input: map[string]interface{}{"name": "main"}}},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("ChatOut mismatch (-want +got):\n%s", diff)
	}

	if gen.got.system != "You review code." {
		t.Errorf("system = %q", gen.got.system)
	}
	if len(gen.got.history) != 2 || gen.got.history[0].Role != "user" || gen.got.history[1].Role != "model" {
		t.Errorf("history = %+v", gen.got.history)
	}
	if diff := cmp.Diff([]genai.Part{genai.Text("find main")}, gen.got.parts); diff != "" {
		t.Errorf("parts mismatch (-want +got):\n%s", diff)
	}
	if len(gen.got.tools) != 1 || len(gen.got.tools[0].FunctionDeclarations) != 1 {
		t.Errorf("tools = %+v", gen.got.tools)
	}
}

func TestChatErrors(t *testing.T) {
	t.Run("no conversation", func(t *testing.T) {
		_, err := newFakeModel(&fakeGenerator{}).Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "x"}}, nil)
		if err == nil {
			t.Error("expected error")
		}
	})

	t.Run("safety block", func(t *testing.T) {
		gen := &fakeGenerator{err: &genai.BlockedError{
			Candidate: &genai.Candidate{
				FinishReason: genai.FinishReasonSafety,
				SafetyRatings: []*genai.SafetyRating{
					{Category: genai.HarmCategoryHarassment, Blocked: false},
					{Category: genai.HarmCategoryDangerousContent, Blocked: true},
				},
			},
		}}
		_, err := newFakeModel(gen).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)

		var safetyErr *SafetyFilterError
		if !errors.As(err, &safetyErr) {
			t.Fatalf("error = %v, want *SafetyFilterError", err)
		}
		if safetyErr.Category() != genai.HarmCategoryDangerousContent.String() {
			t.Errorf("Category() = %q", safetyErr.Category())
		}
		if safetyErr.Reason() != genai.FinishReasonSafety.String() {
			t.Errorf("Reason() = %q", safetyErr.Reason())
		}
	})

	t.Run("api error wrapped", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := newFakeModel(&fakeGenerator{err: boom}).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}}, nil)
		if !errors.Is(err, boom) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := newFakeModel(&fakeGenerator{}).Chat(ctx, nil, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if _, err := NewChatModel(context.Background(), "", ""); err == nil {
			t.Error("expected error for empty key")
		}
	})
}

func TestConvertSchema(t *testing.T) {
	got := convertSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "description": "symbol name"},
			"tags": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []interface{}{"name"},
	})

	want := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString, Description: "symbol name"},
			"tags": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"name"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
	if convertSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestConvertResponseEmpty(t *testing.T) {
	if out := convertResponse(&genai.GenerateContentResponse{}); out.Text != "" || out.ToolCalls != nil {
		t.Errorf("convertResponse(empty) = %+v", out)
	}
	if out := convertResponse(nil); out.Text != "" {
		t.Errorf("convertResponse(nil) = %+v", out)
	}
}
