package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a short-lived OpenTelemetry span.
//
// Span name is the event message. Run, graph, step and node identifiers are
// recorded under the "minigraph." attribute namespace and meta entries are
// attached as-is, except for a few well-known keys which are namespaced:
//
//	tool        -> minigraph.node.tool
//	duration_ms -> minigraph.node.duration_ms
//	next        -> minigraph.edge.next
//	condition   -> minigraph.edge.condition
//
// Events carrying an "error" meta key get an error span status.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter backed by tracer.
//
//	tracer := otel.Tracer("minigraph")
//	engine, err := graph.New(tools, graph.WithEmitter(emit.NewOTelEmitter(tracer)))
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span that ends immediately.
func (o *OTelEmitter) Emit(event Event) {
	o.emit(context.Background(), event)
}

// EmitBatch records each event as its own span under ctx.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.emit(ctx, event)
	}
	return nil
}

func (o *OTelEmitter) emit(ctx context.Context, event Event) {
	_, span := o.tracer.Start(ctx, event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("minigraph.run_id", event.RunID),
		attribute.String("minigraph.graph_id", event.GraphID),
		attribute.Int("minigraph.step", event.Step),
		attribute.String("minigraph.node_id", event.NodeID),
	)
	setMetaAttributes(span, event.Meta)

	if msg, ok := event.Meta["error"]; ok {
		text := fmt.Sprint(msg)
		span.SetStatus(codes.Error, text)
		span.RecordError(errors.New(text))
	}
}

var metaAttributeKeys = map[string]string{
	"tool":        "minigraph.node.tool",
	"duration_ms": "minigraph.node.duration_ms",
	"next":        "minigraph.edge.next",
	"condition":   "minigraph.edge.condition",
	"status":      "minigraph.run.status",
}

func setMetaAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := key
		if mapped, ok := metaAttributeKeys[key]; ok {
			attrKey = mapped
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
