package tool

import (
	"context"
	"sync"
)

// MockTool is a scripted Tool for tests.
//
//	mock := &tool.MockTool{
//	    ToolName:  "score",
//	    Responses: []map[string]interface{}{{"quality_score": 40}, {"quality_score": 90}},
//	}
//
// Each Call returns the next response; the last one repeats once the
// script runs out. When Err is set it is returned instead.
type MockTool struct {
	// ToolName is the identifier returned by Name().
	ToolName string

	// Responses is the sequence of updates to return.
	Responses []map[string]interface{}

	// Err, if set, is returned by every Call.
	Err error

	mu        sync.Mutex
	calls     []MockToolCall
	callIndex int
}

// MockToolCall records a single invocation of Call.
type MockToolCall struct {
	Input map[string]interface{}
}

// Name implements Tool.
func (m *MockTool) Name() string {
	return m.ToolName
}

// Call implements Tool. The call is recorded even when it fails.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockToolCall{Input: input})

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return nil, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockTool) Calls() []MockToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]MockToolCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of times Call has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

// Reset clears the call history and rewinds the response script.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = nil
	m.callIndex = 0
}
