package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogExporter(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(zerolog.New(&buf))))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := tp.Tracer(TracerName)
	ctx, parent := tracer.Start(context.Background(), "link.run")
	_, child := tracer.Start(ctx, "decaf.flush_all")
	child.SetAttributes(attribute.String("decaf.trigger", "timer"), attribute.Int("decaf.sessions", 2))
	EndSpan(child, errors.New("send failed"))
	EndSpan(parent, nil)

	out := buf.String()
	assert.Contains(t, out, `"span":"decaf.flush_all"`)
	assert.Contains(t, out, `"decaf.trigger":"timer"`)
	assert.Contains(t, out, `"decaf.sessions":"2"`)
	assert.Contains(t, out, `"error":"send failed"`)
	assert.Contains(t, out, `"parent_id":"`+parent.SpanContext().SpanID().String()+`"`)
	assert.Contains(t, out, `"span":"link.run"`)
	assert.Contains(t, out, `"module":"tracing"`)
}

func TestLogProcessorFlushesOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewLogProcessor(zerolog.New(&buf))))

	_, span := tp.Tracer(TracerName).Start(context.Background(), "link.run")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"span":"link.run"`)
}
