package serve

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/zero-day-ai/identity/nodeid"
)

// SessionMetadataKey carries the caller's instance node session or logical
// node session in request metadata.
const SessionMetadataKey = "x-node-session"

const tracerName = "github.com/zero-day-ai/identity/serve"

type callerKey struct{}

// CallerFromContext returns the rehydrated caller session attached by
// UnaryInterceptor, if the request carried one.
func CallerFromContext(ctx context.Context) (nodeid.NodeIdentifier, bool) {
	id, ok := ctx.Value(callerKey{}).(nodeid.NodeIdentifier)
	return id, ok && id != nil
}

// InterceptorOption configures UnaryInterceptor.
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	tracer trace.Tracer
	logger *slog.Logger
}

// WithTracerProvider sets the provider used for per-RPC spans.
// The default is a noop provider.
func WithTracerProvider(tp trace.TracerProvider) InterceptorOption {
	return func(c *interceptorConfig) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithInterceptorLogger sets the logger for rejected and failed calls.
func WithInterceptorLogger(logger *slog.Logger) InterceptorOption {
	return func(c *interceptorConfig) {
		c.logger = logger
	}
}

// UnaryInterceptor binds svc to every request context, rehydrates the
// caller session from SessionMetadataKey and wraps the call in a span,
// parented to the caller's span when the request names one.
// Identifier panics raised by programming errors are converted to
// codes.Internal instead of tearing down the server.
func UnaryInterceptor(svc *nodeid.Service, opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	cfg := &interceptorConfig{
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		ctx = nodeid.NewContext(parentFromMetadata(ctx), svc)

		ctx, span := cfg.tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.method", info.FullMethod)),
		)
		defer span.End()

		if raw, ok := sessionFromMetadata(ctx); ok {
			caller, rerr := rehydrateCaller(ctx, raw)
			if rerr != nil {
				cfg.logger.Warn("rejected caller session", "method", info.FullMethod, "session", raw)
				span.SetStatus(otelcodes.Error, "malformed caller session")
				return nil, status.Errorf(codes.InvalidArgument, "%s: %v", SessionMetadataKey, rerr)
			}
			ctx = context.WithValue(ctx, callerKey{}, caller)
			span.SetAttributes(
				attribute.String("nodeid.caller", caller.String()),
				attribute.String("nodeid.caller.type", caller.Type().String()),
			)
		}

		defer func() {
			if r := recover(); r != nil {
				var idErr *nodeid.Error
				perr, isErr := r.(error)
				if !isErr || !errors.As(perr, &idErr) {
					panic(r)
				}
				cfg.logger.Error("node identifier invariant violated", "method", info.FullMethod, "error", idErr)
				span.RecordError(idErr)
				span.SetStatus(otelcodes.Error, idErr.Kind)
				resp, err = nil, status.Error(codes.Internal, idErr.Error())
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, status.Code(err).String())
			return nil, err
		}
		span.SetStatus(otelcodes.Ok, "")
		return resp, nil
	}
}

func sessionFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(SessionMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return "", false
	}
	return values[0], true
}

func rehydrateCaller(ctx context.Context, raw string) (nodeid.NodeIdentifier, error) {
	if id, err := nodeid.Rehydrate(ctx, raw, nodeid.TypeInstanceNodeSession); err == nil {
		return id, nil
	}
	return nodeid.Rehydrate(ctx, raw, nodeid.TypeLogicalNodeSession)
}

// statusFromError maps identifier errors onto gRPC status codes.
func statusFromError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case nodeid.IsMalformed(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, nodeid.ErrNoService):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, nodeid.ErrInvalidConversion),
		errors.Is(err, nodeid.ErrInvalidTypeForOperation),
		errors.Is(err, nodeid.ErrInternalConsistency):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
