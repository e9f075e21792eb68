package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Config describes how a Server listens and shuts down.
type Config struct {
	// Port is the TCP listen port; 0 picks a free one. Default: 50051
	Port int

	// GracefulTimeout bounds GracefulStop before in-flight RPCs are
	// cancelled. Default: 30s
	GracefulTimeout time.Duration

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Listener replaces the TCP listener, e.g. with a bufconn listener in
	// tests. Port is ignored when set.
	Listener net.Listener

	// Logger receives lifecycle messages. Default: slog.Default().
	Logger *slog.Logger

	// UnaryInterceptors are chained in order on every unary RPC.
	UnaryInterceptors []grpc.UnaryServerInterceptor
}

// Defaults applied by DefaultConfig and NewServer.
const (
	DefaultPort            = 50051
	DefaultGracefulTimeout = 30 * time.Second
)

// DefaultConfig returns a Config listening on DefaultPort.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		GracefulTimeout: DefaultGracefulTimeout,
	}
}

// Server is a gRPC server bound to its listener, with the standard health
// service registered.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	config       *Config
	healthServer *health.Server
	logger       *slog.Logger
}

// NewServer applies opts to cfg (DefaultConfig when nil), binds the
// listener and registers the health service. Nothing is served until Serve.
func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	listener := cfg.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
		}
	}

	var serverOpts []grpc.ServerOption
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("load TLS credentials: %w", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	if len(cfg.UnaryInterceptors) > 0 {
		serverOpts = append(serverOpts, grpc.ChainUnaryInterceptor(cfg.UnaryInterceptors...))
	}

	grpcServer := grpc.NewServer(serverOpts...)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	return &Server{
		grpcServer:   grpcServer,
		listener:     listener,
		config:       cfg,
		healthServer: healthServer,
		logger:       logger.With("component", "serve"),
	}, nil
}

// GRPCServer returns the underlying server for service registration.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// HealthServer returns the health service, e.g. for a health.Reporter.
func (s *Server) HealthServer() *health.Server {
	return s.healthServer
}

// Serve starts the gRPC server and blocks until ctx is done or the server
// fails. Cancelling ctx triggers a graceful stop.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	s.logger.Info("gRPC server listening", "address", s.listener.Addr().String())

	select {
	case <-ctx.Done():
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop cancels in-flight RPCs and closes the listener.
func (s *Server) Stop() {
	s.grpcServer.Stop()
	s.listener.Close()
}

// GracefulStop marks every service NOT_SERVING, stops accepting
// connections and waits up to GracefulTimeout for in-flight RPCs.
func (s *Server) GracefulStop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	s.healthServer.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timeout, forcing stop", "timeout", s.config.GracefulTimeout)
		s.grpcServer.Stop()
	}
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the bound TCP port, or the configured one for non-TCP
// listeners.
func (s *Server) Port() int {
	if s.listener != nil {
		if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.config.Port
}
