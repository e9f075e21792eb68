// Package health provides health checks for an identity node and mirrors
// their combined result into the gRPC health service.
//
// # Checks
//
//   - NetworkCheck: TCP connectivity to one host:port
//   - EndpointsCheck: reachability of a replicated service's endpoints
//   - FileCheck: a regular file exists, e.g. a TLS certificate
//   - SessionCheck: the node's instance session still validates
//   - DirectoryCheck: the session is announced and discoverable
//   - PresenceCheck: the session heartbeat has not expired
//
// Combine reduces several results to the worst State among them. States
// other than the three defined ones count as unhealthy.
//
// # Reporter
//
// A Reporter evaluates named checks periodically. Healthy and degraded
// results keep the gRPC health status at SERVING; unhealthy results switch
// it to NOT_SERVING.
//
//	reporter := health.NewReporter(srv.HealthServer(), health.WithServices(serve.ServiceName))
//	reporter.AddCheck("session", func(context.Context) health.HealthStatus {
//	    return health.SessionCheck(svc, session)
//	})
//	go reporter.Run(ctx)
package health
