package realtime

import (
	"context"

	"github.com/vango-dev/pulse/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/pulse/pkg/realtime"

// startSpan opens a producer span for an outbound operation. The span is
// ended by the listener returned from traceCompletion.
func startSpan(ctx context.Context, name, channel string, n int) trace.Span {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("pulse.channel", channel),
			attribute.Int("pulse.batch_size", n),
		),
	)
	return span
}

// traceCompletion wraps l so the outcome ends span.
func traceCompletion(span trace.Span, l CompletionListener) CompletionListener {
	return CompletionFunc(func(err *protocol.ErrorInfo) {
		endSpan(span, err)
		if l != nil {
			l.OnComplete(err)
		}
	})
}

func endSpan(span trace.Span, err *protocol.ErrorInfo) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Int("pulse.error_code", err.Code))
		span.SetStatus(codes.Error, err.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
