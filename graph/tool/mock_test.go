package tool

import (
	"context"
	"errors"
	"testing"
)

func TestMockTool(t *testing.T) {
	ctx := context.Background()

	t.Run("returns scripted responses then repeats last", func(t *testing.T) {
		mock := &MockTool{
			ToolName: "score",
			Responses: []map[string]interface{}{
				{"quality_score": 40},
				{"quality_score": 90},
			},
		}

		var got []interface{}
		for i := 0; i < 3; i++ {
			out, err := mock.Call(ctx, map[string]interface{}{"i": i})
			if err != nil {
				t.Fatalf("Call %d: %v", i, err)
			}
			got = append(got, out["quality_score"])
		}

		want := []interface{}{40, 90, 90}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("call %d = %v, want %v", i, got[i], want[i])
			}
		}
		if mock.CallCount() != 3 {
			t.Errorf("CallCount = %d, want 3", mock.CallCount())
		}
		if calls := mock.Calls(); calls[2].Input["i"] != 2 {
			t.Errorf("third call input = %v", calls[2].Input)
		}
	})

	t.Run("no responses means no update", func(t *testing.T) {
		mock := &MockTool{ToolName: "noop"}
		out, err := mock.Call(ctx, nil)
		if err != nil || out != nil {
			t.Errorf("Call = (%v, %v), want (nil, nil)", out, err)
		}
	})

	t.Run("error injection records call", func(t *testing.T) {
		boom := errors.New("boom")
		mock := &MockTool{ToolName: "fail", Err: boom}

		if _, err := mock.Call(ctx, nil); !errors.Is(err, boom) {
			t.Errorf("Call error = %v, want boom", err)
		}
		if mock.CallCount() != 1 {
			t.Errorf("CallCount = %d, want 1", mock.CallCount())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		mock := &MockTool{ToolName: "x"}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := mock.Call(cctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("Call error = %v, want context.Canceled", err)
		}
		if mock.CallCount() != 0 {
			t.Error("cancelled call should not be recorded")
		}
	})

	t.Run("reset", func(t *testing.T) {
		mock := &MockTool{ToolName: "x", Responses: []map[string]interface{}{{"a": 1}, {"a": 2}}}
		_, _ = mock.Call(ctx, nil)
		mock.Reset()

		out, _ := mock.Call(ctx, nil)
		if out["a"] != 1 {
			t.Errorf("after Reset got %v, want first response", out["a"])
		}
		if mock.CallCount() != 1 {
			t.Errorf("CallCount after Reset = %d, want 1", mock.CallCount())
		}
	})
}
