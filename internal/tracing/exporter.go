package tracing

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes finished spans to a zerolog logger, one line per span.
// Log output never shares stdout with the protocol, so spans are safe to
// emit in stdio mode.
type LogExporter struct {
	logger zerolog.Logger
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter creates an exporter logging to logger.
func NewLogExporter(logger zerolog.Logger) *LogExporter {
	return &LogExporter{
		logger: logger.With().Str("module", "tracing").Logger(),
	}
}

// NewLogProcessor batches spans into a LogExporter.
func NewLogProcessor(logger zerolog.Logger) sdktrace.SpanProcessor {
	return sdktrace.NewBatchSpanProcessor(NewLogExporter(logger))
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		sc := s.SpanContext()
		ev := e.logger.Info().
			Str("span", s.Name()).
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Dur("duration", s.EndTime().Sub(s.StartTime()))

		if parent := s.Parent(); parent.IsValid() {
			ev = ev.Str("parent_id", parent.SpanID().String())
		}
		for _, kv := range s.Attributes() {
			ev = ev.Str(string(kv.Key), kv.Value.Emit())
		}
		if status := s.Status(); status.Code == codes.Error {
			ev = ev.Str("error", status.Description)
		}

		ev.Msg("Span ended")
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}
