package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes one line per event to a writer.
//
// Text mode output:
//
//	[node_completed] run=4f1c... graph=9a2e... step=3 node=issues meta={"tool":"detect_issues"}
//
// JSON mode output (JSON lines):
//
//	{"run_id":"4f1c...","graph_id":"9a2e...","step":3,"node_id":"issues","msg":"node_completed","meta":{"tool":"detect_issues"}}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes the event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

type jsonEvent struct {
	RunID   string                 `json:"run_id"`
	GraphID string                 `json:"graph_id,omitempty"`
	Step    int                    `json:"step"`
	NodeID  string                 `json:"node_id,omitempty"`
	Msg     string                 `json:"msg"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(jsonEvent{
		RunID:   event.RunID,
		GraphID: event.GraphID,
		Step:    event.Step,
		NodeID:  event.NodeID,
		Msg:     event.Msg,
		Meta:    event.Meta,
	})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] run=%s graph=%s step=%d node=%s",
		event.Msg, event.RunID, event.GraphID, event.Step, event.NodeID)

	if len(event.Meta) > 0 {
		metaJSON, err := json.Marshal(event.Meta)
		if err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}

	fmt.Fprint(l.writer, "\n")
}
