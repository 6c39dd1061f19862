package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span, in a form that can be stored in a row.
type TraceContext struct {
	Traceparent string
	Tracestate  string
}

// Empty reports whether no span was active when the context was captured.
func (tc TraceContext) Empty() bool {
	return tc.Traceparent == "" && tc.Tracestate == ""
}

// CaptureTraceContext serializes the span in ctx with the global propagator.
func CaptureTraceContext(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Traceparent: carrier["traceparent"], Tracestate: carrier["tracestate"]}
}

// Restore returns parent with the stored span context attached as the remote parent.
func (tc TraceContext) Restore(parent context.Context) context.Context {
	if tc.Empty() {
		return parent
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Traceparent}
	if tc.Tracestate != "" {
		carrier["tracestate"] = tc.Tracestate
	}
	return otel.GetTextMapPropagator().Extract(parent, carrier)
}
