package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check produces the current status of one component.
type Check func(ctx context.Context) HealthStatus

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithInterval sets how often Run evaluates the checks. Default: 10s.
func WithInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithServices names the gRPC services whose serving status follows the
// combined result, in addition to the overall "" service.
func WithServices(names ...string) ReporterOption {
	return func(r *Reporter) {
		r.services = append(r.services, names...)
	}
}

// WithLogger sets the logger used for status transitions.
func WithLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Reporter runs named checks and mirrors the combined result into a gRPC
// health server.
type Reporter struct {
	server   *grpchealth.Server
	services []string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	checks []namedCheck
	last   HealthStatus
}

// NewReporter creates a Reporter publishing to server. server may be nil,
// in which case results are only kept for Last.
func NewReporter(server *grpchealth.Server, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		server:   server,
		interval: 10 * time.Second,
		logger:   slog.Default(),
		last:     Healthy("not evaluated"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "health")
	return r
}

// AddCheck registers check under name. Checks run in registration order.
func (r *Reporter) AddCheck(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Evaluate runs every check once, publishes the combined status and
// returns it. Per-check results are listed under Details["checks"].
func (r *Reporter) Evaluate(ctx context.Context) HealthStatus {
	r.mu.Lock()
	checks := append([]namedCheck(nil), r.checks...)
	r.mu.Unlock()

	results := make([]HealthStatus, 0, len(checks))
	perCheck := make(map[string]any, len(checks))
	for _, c := range checks {
		s := c.check(ctx)
		results = append(results, s)
		perCheck[c.name] = string(s.State)
	}

	combined := Combine(results...)
	if combined.Details == nil {
		combined.Details = map[string]any{}
	}
	combined.Details["checks"] = perCheck

	r.mu.Lock()
	previous := r.last
	r.last = combined
	r.mu.Unlock()

	if previous.State != combined.State {
		r.logger.Info("health status changed", "from", previous.State, "to", combined.State, "message", combined.Message)
	}
	r.publish(combined)
	return combined
}

// Last returns the most recent combined status.
func (r *Reporter) Last() HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run evaluates the checks immediately and then every interval until ctx
// is done.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evaluate(ctx)
		}
	}
}

func (r *Reporter) publish(s HealthStatus) {
	if r.server == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if !s.Serving() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", status)
	for _, name := range r.services {
		r.server.SetServingStatus(name, status)
	}
}
