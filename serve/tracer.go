package serve

import (
	"context"
	"encoding/hex"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// Metadata keys linking a call to the caller's span.
const (
	TraceIDMetadataKey      = "x-trace-id"
	ParentSpanIDMetadataKey = "x-parent-span-id"
)

// NewTracerProvider creates a TracerProvider whose resource carries
// serviceName and attrs. Every processor is registered in order. If the
// resource cannot be built the default resource is used.
func NewTracerProvider(serviceName string, attrs []attribute.KeyValue, logger *slog.Logger, processors ...sdktrace.SpanProcessor) *sdktrace.TracerProvider {
	if logger == nil {
		logger = slog.Default()
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(append([]attribute.KeyValue{semconv.ServiceNameKey.String(serviceName)}, attrs...)...),
	)
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(opts...)
}

// CreateParentContext creates a context with a remote parent SpanContext
// from hex-encoded traceID and parentSpanID strings. The original context
// is returned if either cannot be decoded.
func CreateParentContext(ctx context.Context, traceID, parentSpanID string) context.Context {
	if traceID == "" || parentSpanID == "" {
		return ctx
	}

	traceIDBytes, err := hex.DecodeString(traceID)
	if err != nil || len(traceIDBytes) != 16 {
		return ctx
	}
	spanIDBytes, err := hex.DecodeString(parentSpanID)
	if err != nil || len(spanIDBytes) != 8 {
		return ctx
	}

	var tid trace.TraceID
	copy(tid[:], traceIDBytes)
	var sid trace.SpanID
	copy(sid[:], spanIDBytes)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(ctx, parent)
}

// parentFromMetadata applies TraceIDMetadataKey and ParentSpanIDMetadataKey
// from incoming metadata.
func parentFromMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	return CreateParentContext(ctx, first(md.Get(TraceIDMetadataKey)), first(md.Get(ParentSpanIDMetadataKey)))
}

// appendParentMetadata forwards the current span of ctx to the server.
func appendParentMetadata(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx,
		TraceIDMetadataKey, sc.TraceID().String(),
		ParentSpanIDMetadataKey, sc.SpanID().String(),
	)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
