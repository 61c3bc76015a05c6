package emit

import (
	"context"
	"log/slog"
	"sort"
)

// SlogEmitter forwards events to a structured logger.
//
// Failed runs are logged at Error; condition errors, missing nodes and
// step-limit exits at Warn; node completions at Debug; everything else at Info.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter returns an emitter that logs through logger.
// A nil logger falls back to slog.Default().
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit implements Emitter.
func (s *SlogEmitter) Emit(event Event) {
	level := levelFor(event)
	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 4+len(event.Meta))
	if event.RunID != "" {
		attrs = append(attrs, slog.String("run_id", event.RunID))
	}
	if event.GraphID != "" {
		attrs = append(attrs, slog.String("graph_id", event.GraphID))
	}
	attrs = append(attrs, slog.Int("step", event.Step))
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, event.Meta[k]))
	}

	s.logger.LogAttrs(ctx, level, event.Msg, attrs...)
}

func levelFor(event Event) slog.Level {
	switch event.Msg {
	case MsgRunFailed:
		return slog.LevelError
	case MsgConditionError, MsgNodeMissing, MsgStepLimit:
		return slog.LevelWarn
	case MsgNodeCompleted:
		return slog.LevelDebug
	}
	if event.IsError() {
		return slog.LevelError
	}
	return slog.LevelInfo
}
