package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTracerProvider(serviceName string, logger *slog.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&slogExporter{logger: logger}),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
}

// slogExporter writes finished spans to the logger at debug level, or at
// error level for spans with an error status.
type slogExporter struct {
	logger *slog.Logger
}

func (e *slogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		level := slog.LevelDebug
		if span.Status().Code == codes.Error {
			level = slog.LevelError
		}
		if !e.logger.Enabled(ctx, level) {
			continue
		}

		attrs := []slog.Attr{
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
			slog.Duration("duration", span.EndTime().Sub(span.StartTime())),
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		if desc := span.Status().Description; desc != "" {
			attrs = append(attrs, slog.String("status", desc))
		}
		e.logger.LogAttrs(ctx, level, "span "+span.Name(), attrs...)
	}
	return nil
}

func (e *slogExporter) Shutdown(context.Context) error { return nil }
