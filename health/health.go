package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultDialTimeout bounds NetworkCheck when ctx has no deadline.
const DefaultDialTimeout = 5 * time.Second

// NetworkCheck dials address ("host:port") over TCP.
//
// Example:
//
//	status := health.NetworkCheck(ctx, "etcd-0:2379")
func NetworkCheck(ctx context.Context, address string) HealthStatus {
	details := map[string]any{"address": address}
	if host, port, err := net.SplitHostPort(address); err != nil || host == "" || port == "" {
		return Unhealthy(fmt.Sprintf("invalid address %q", address), details)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultDialTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		details["error"] = err.Error()
		return Unhealthy("cannot reach "+address, details)
	}
	_ = conn.Close()
	return Healthy("reached " + address)
}

// EndpointsCheck dials every endpoint of a replicated service such as an
// etcd cluster. All reachable is healthy, some reachable is degraded, none
// is unhealthy. Endpoints may carry a URL scheme.
func EndpointsCheck(ctx context.Context, endpoints []string) HealthStatus {
	if len(endpoints) == 0 {
		return Unhealthy("no endpoints configured", nil)
	}

	var unreachable []string
	for _, ep := range endpoints {
		if s := NetworkCheck(ctx, hostPort(ep)); !s.IsHealthy() {
			unreachable = append(unreachable, ep)
		}
	}

	switch len(unreachable) {
	case 0:
		return Healthy(fmt.Sprintf("%d endpoint(s) reachable", len(endpoints)))
	case len(endpoints):
		return Unhealthy("no endpoint reachable", map[string]any{"unreachable": unreachable})
	default:
		return Degraded(fmt.Sprintf("%d of %d endpoint(s) unreachable", len(unreachable), len(endpoints)),
			map[string]any{"unreachable": unreachable})
	}
}

func hostPort(endpoint string) string {
	if !strings.Contains(endpoint, "://") {
		return endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Host
}

// FileCheck verifies that path names an existing regular file.
func FileCheck(path string) HealthStatus {
	if path == "" {
		return Unhealthy("empty path", nil)
	}

	details := map[string]any{"path": path}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Unhealthy(path+" does not exist", details)
	case err != nil:
		details["error"] = err.Error()
		return Unhealthy("cannot stat "+path, details)
	case info.IsDir():
		return Unhealthy(path+" is a directory", details)
	}
	return Healthy(path + " exists")
}

// Combine returns the worst state among statuses. Messages of every status
// that is not healthy are listed, in order, under Details["problems"].
func Combine(statuses ...HealthStatus) HealthStatus {
	worst := StateHealthy
	var problems []string
	for _, s := range statuses {
		if s.State.severity() > worst.severity() {
			worst = s.State
			if worst.severity() == 2 {
				worst = StateUnhealthy
			}
		}
		if !s.IsHealthy() {
			problems = append(problems, s.Message)
		}
	}

	if len(problems) == 0 {
		return Healthy(fmt.Sprintf("%d check(s) passed", len(statuses)))
	}
	return HealthStatus{
		State:   worst,
		Message: fmt.Sprintf("%d of %d check(s) not healthy: %s", len(problems), len(statuses), strings.Join(problems, "; ")),
		Details: map[string]any{"problems": problems},
	}
}
