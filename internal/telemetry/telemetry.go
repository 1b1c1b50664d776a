// Package telemetry wires OpenTelemetry tracing around orchestrator
// calls. A span is started per call.chat/call.stream/call.fallback/
// call.race (Map opens no span of its own; each of its items runs as a
// call.chat) and annotated with the binding, request id, token
// counts, and cost once known.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// Init configures the global tracer provider. With an empty otlpEndpoint
// it installs no exporter and takes its tracer from the global provider
// (a no-op unless one was set elsewhere), so StartSpan stays cheap and
// safe to call unconditionally in tests and local runs.
func Init(ctx context.Context, serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		tracer = otel.Tracer(serviceName)
		slog.Info("telemetry disabled, no OTLP endpoint configured")
		return func(ctx context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer = tp.Tracer(serviceName)

	slog.Info("telemetry initialized", "endpoint", otlpEndpoint)

	return tp.Shutdown, nil
}

// Tracer returns the active tracer, lazily installing a no-op one if
// Init was never called.
func Tracer() trace.Tracer {
	if tracer == nil {
		tracer = otel.Tracer("orchestrator")
	}
	return tracer
}

// StartSpan opens a span under the active tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// AddCallAttributes annotates a span with the resolved binding and the
// caller-supplied request id.
func AddCallAttributes(span trace.Span, binding, requestID string) {
	span.SetAttributes(
		attribute.String("binding", binding),
		attribute.String("request.id", requestID),
	)
}

// AddAttemptAttributes records which attempt number a retry span
// corresponds to.
func AddAttemptAttributes(span trace.Span, attempt int) {
	span.SetAttributes(
		attribute.Int("attempt", attempt),
	)
}

// AddTokenAttributes records input/output token counts once usage is
// known.
func AddTokenAttributes(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int("tokens.input", inputTokens),
		attribute.Int("tokens.output", outputTokens),
		attribute.Int("tokens.total", inputTokens+outputTokens),
	)
}

// AddCostAttribute records the USD cost computed for a call.
func AddCostAttribute(span trace.Span, costUSD float64) {
	span.SetAttributes(
		attribute.Float64("cost.usd", costUSD),
	)
}

// AddOutcomeAttribute tags a fallback/race span with which binding
// ultimately produced the result.
func AddOutcomeAttribute(span trace.Span, winningBinding string) {
	span.SetAttributes(
		attribute.String("outcome.binding", winningBinding),
	)
}

// AddErrorAttribute records err on span, both as an attribute and via
// the span's dedicated error-recording API.
func AddErrorAttribute(span trace.Span, err error) {
	span.SetAttributes(
		attribute.String("error.message", err.Error()),
	)
	span.RecordError(err)
}

// GetTraceID returns the hex trace id of the span active on ctx, or ""
// if ctx carries no recording span.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
