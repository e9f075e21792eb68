package identity

import (
	"io"
	"log/slog"
	"net"

	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/identity/directory"
	"github.com/zero-day-ai/identity/idgen"
)

// Option configures a Node.
type Option func(*nodeOptions)

type nodeOptions struct {
	logger         *slog.Logger
	logOutput      io.Writer
	tracerProvider trace.TracerProvider
	spanProcessors []sdktrace.SpanProcessor
	meterProvider  metric.MeterProvider
	listener       net.Listener
	store          directory.Store
	clock          idgen.Clock
}

// WithLogger sets the logger. By default a logger is built from the
// logging section of the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *nodeOptions) {
		o.logger = logger
	}
}

// WithLogOutput sets where the configured logger writes. Default: os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *nodeOptions) {
		o.logOutput = w
	}
}

// WithTracerProvider sets the provider for RPC spans. The node does not
// shut it down.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *nodeOptions) {
		o.tracerProvider = tp
	}
}

// WithSpanProcessor registers a span processor on the tracer provider the
// node builds when no WithTracerProvider is given.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *nodeOptions) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// WithMeterProvider sets the provider for identifier counters.
// Default: the global otel meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *nodeOptions) {
		o.meterProvider = mp
	}
}

// WithListener serves gRPC on lis instead of the configured port.
func WithListener(lis net.Listener) Option {
	return func(o *nodeOptions) {
		o.listener = lis
	}
}

// WithDirectoryStore announces into store instead of dialing the configured
// etcd endpoints. The caller keeps ownership of store.
func WithDirectoryStore(store directory.Store) Option {
	return func(o *nodeOptions) {
		o.store = store
	}
}

// WithClock sets the clock used for session timestamps.
func WithClock(clock idgen.Clock) Option {
	return func(o *nodeOptions) {
		o.clock = clock
	}
}
