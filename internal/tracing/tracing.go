// Package tracing configures OpenTelemetry and provides span helpers for the
// ingestion and feed paths.
package tracing

import (
	"context"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this service in exported traces.
const ServiceName = "hebrewfeed"

// DefaultEndpoint is the OTLP HTTP collector used when none is configured.
const DefaultEndpoint = "localhost:4318"

// tracer returns the package tracer. This must be a function (not a package-level var)
// because the global TracerProvider isn't set until Init() runs.
func tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// Init creates and registers a tracer provider with an OTLP HTTP exporter
// sending to endpoint (host:port). Returns the provider so the caller can
// defer Shutdown.
func Init(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	// Bridge OTel's internal logger to zerolog
	otel.SetLogger(zerologr.New(&log.Logger))

	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(ServiceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// BatchSpan starts a span for handling one batch of firehose commits.
func BatchSpan(ctx context.Context, commits int, firstSeq, lastSeq int64) (context.Context, trace.Span) {
	return tracer().Start(ctx, "indexer.batch",
		trace.WithAttributes(
			attribute.Int("batch.commits", commits),
			attribute.Int64("batch.first_seq", firstSeq),
			attribute.Int64("batch.last_seq", lastSeq),
		),
	)
}

// FeedSpan starts a span for generating one feed page.
func FeedSpan(ctx context.Context, feed string, authenticated bool) (context.Context, trace.Span) {
	return tracer().Start(ctx, "feed."+feed,
		trace.WithAttributes(
			attribute.String("feed.name", feed),
			attribute.Bool("feed.authenticated", authenticated),
		),
	)
}

// XRPCSpan starts a span for an outbound XRPC call.
func XRPCSpan(ctx context.Context, method, did string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "xrpc."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("xrpc.method", method),
			attribute.String("xrpc.did", did),
		),
	)
}

// EndWithError records an error on a span and sets its status.
// If err is nil, this is a no-op.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
