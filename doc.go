// Package identity runs a node identity: an instance node, the session it
// opened at startup and the logical nodes it hosts.
//
// The identifier kinds, their codec and the generation and parsing
// operations live in package nodeid. This package assembles them with the
// infrastructure that makes an identity visible to its peers:
//
//   - names: display-name bindings, including encrypted names
//   - directory: session announcements in etcd, leased and kept alive
//   - namesync: name propagation and heartbeats through Redis
//   - serve: the NodeIdentifierService over gRPC with the gRPC health service
//   - health: periodic checks feeding the health service
//
// # Getting Started
//
// Load identity.yaml and run a node until the process is signalled:
//
//	cfg, err := config.Load("identity.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	node, err := identity.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer node.Close()
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := node.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Error Handling
//
// Failures are reported as *Error values carrying the operation and a
// kind. Match them with errors.Is against the sentinels or a kind:
//
//	if errors.Is(err, identity.ErrInvalidConfig) {
//		// fix identity.yaml
//	}
//	if errors.Is(err, &identity.Error{Kind: identity.KindNetwork}) {
//		// etcd, Redis or the listener is unreachable
//	}
//
// # Observability
//
// Logs are written with log/slog using the logging section of the
// configuration. Every RPC is traced with OpenTelemetry; the node builds a
// tracer provider whose resource carries the instance and session unless
// WithTracerProvider supplies one. Identifier generation and parse
// failures are counted through the meter provider.
package identity
