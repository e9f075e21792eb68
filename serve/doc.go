// Package serve exposes node identifiers over gRPC.
//
// Server wraps a grpc.Server with the standard gRPC health service, optional
// TLS and graceful shutdown. The NodeIdentifierService generates, parses and
// names identifiers for remote callers using only well-known protobuf
// message types, so no generated code is needed on either side.
//
// # Usage
//
//	srv, err := serve.NewServer(nil,
//	    serve.WithPort(50051),
//	    serve.WithUnaryInterceptor(serve.UnaryInterceptor(svc)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	serve.RegisterNodeIdentifierServer(srv.GRPCServer(), serve.NewNodeIdentifierServer(svc))
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
//
// On the client side, Client re-parses every identifier it receives through
// a local nodeid.Service:
//
//	client := serve.NewClient(conn, svc, serve.WithCallerSession(session))
//	name, err := client.DisplayName(ctx, id)
//
// # Caller Sessions
//
// A client may identify itself with its instance node session or logical
// node session in the x-node-session metadata key. UnaryInterceptor
// rehydrates it through the service bound to the request context and makes
// it available with CallerFromContext. A malformed caller session fails the
// call with codes.InvalidArgument.
//
// # Tracing
//
// Each RPC runs in a server span. When the request carries x-trace-id and
// x-parent-span-id the span is parented to the caller's span; Client sends
// both whenever its context holds a valid span.
package serve
