package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go/option"

	"github.com/dshills/minigraph/graph/model"
)

func fakeAPI(t *testing.T, status int, reply string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(body, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModel(srv *httptest.Server) *ChatModel {
	return NewChatModel("test-key", "gpt-test", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
}

func TestChat(t *testing.T) {
	reply := `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-test",
		"choices": [{
			"index": 0, "finish_reason": "tool_calls",
			"message": {
				"role": "assistant", "content": "Checking.",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "lookup", "arguments": "{\"name\":\"main\"}"}}]
			}
		}]
	}`
	var req map[string]interface{}
	srv := fakeAPI(t, http.StatusOK, reply, &req)

	out, err := newTestModel(srv).Chat(context.Background(), []model.Message{
		{Role: model.RoleSystem, Content: "You review code."},
		{Role: model.RoleUser, Content: "Find main"},
		{Role: model.RoleAssistant, Content: "Sure."},
	}, []model.ToolSpec{{Name: "lookup", Description: "Find a symbol", Schema: map[string]interface{}{"type": "object"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	want := model.ChatOut{
		Text:      "Checking.",
		ToolCalls: []model.ToolCall{{ID: "call_1", Name: "lookup", Input: map[string]interface{}{"name": "main"}}},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("ChatOut mismatch (-want +got):\n%s", diff)
	}

	if req["model"] != "gpt-test" {
		t.Errorf("model = %v", req["model"])
	}
	msgs, _ := req["messages"].([]interface{})
	if len(msgs) != 3 {
		t.Fatalf("messages = %v", req["messages"])
	}
	var roles []string
	for _, m := range msgs {
		roles = append(roles, m.(map[string]interface{})["role"].(string))
	}
	if diff := cmp.Diff([]string{"system", "user", "assistant"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := fakeAPI(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
	if _, err := newTestModel(srv).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestChatAPIError(t *testing.T) {
	srv := fakeAPI(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit","code":"rate_limit"}}`, nil)
	_, err := newTestModel(srv).Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "hi"}}, nil)
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("Chat() error = %v, want status 429", err)
	}
}

func TestRegistered(t *testing.T) {
	m, err := model.NewFromConfig("openai", "key", "")
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if cm, ok := m.(*ChatModel); !ok || cm.ModelName() != DefaultModel {
		t.Errorf("NewFromConfig returned %T", m)
	}
}
