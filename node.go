package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/identity/config"
	"github.com/zero-day-ai/identity/directory"
	"github.com/zero-day-ai/identity/health"
	"github.com/zero-day-ai/identity/idgen"
	"github.com/zero-day-ai/identity/names"
	"github.com/zero-day-ai/identity/namesync"
	"github.com/zero-day-ai/identity/nodeid"
	"github.com/zero-day-ai/identity/serve"
)

// Node is one running identity: an instance node, its current session and
// the logical nodes it hosts, together with the infrastructure that
// publishes them.
//
// Thread-safety: accessors are safe for concurrent use. Run may be called
// once.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	svc      *nodeid.Service
	registry *names.Registry
	keyring  *names.AESGCMKeyring

	instance     nodeid.InstanceNodeID
	session      nodeid.InstanceNodeSessionID
	logicalNodes []directory.LogicalNode
	encrypted    string

	dir      *directory.Directory
	syncer   *namesync.Client
	server   *serve.Server
	reporter *health.Reporter

	ownedTracer *sdktrace.TracerProvider

	mu      sync.Mutex
	running bool
	closed  bool
}

// New builds a Node from cfg. It connects to etcd and Redis when they are
// configured, binds the gRPC listener and registers the local names, but
// publishes nothing until Run.
func New(cfg *config.Config, opts ...Option) (node *Node, err error) {
	const op = "identity.New"

	if cfg == nil {
		return nil, configError(op, errors.New("config cannot be nil"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, configError(op, err)
	}

	o := &nodeOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = cfg.Logging.NewLogger(o.logOutput)
	}

	n := &Node{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if err := n.initNames(); err != nil {
		return nil, configError(op, err)
	}
	if err := n.initService(o); err != nil {
		return nil, &Error{Op: op, Kind: KindInternal, Err: err}
	}
	if err := n.initIdentity(); err != nil {
		return nil, configError(op, err)
	}
	n.logger = n.logger.With("session", n.session.String())

	if err := n.initServer(o, n.tracerProvider(o)); err != nil {
		return nil, networkError(op, err)
	}
	if err := n.initDirectory(o); err != nil {
		return nil, networkError(op, err)
	}
	if n.cfg.NameSync != nil {
		n.syncer, err = namesync.New(namesync.Options{
			URL:          cfg.NameSync.URL,
			Prefix:       cfg.NameSync.Prefix,
			HeartbeatTTL: cfg.NameSync.GetHeartbeatTTL(),
		}, n.svc, namesync.WithLogger(n.logger))
		if err != nil {
			return nil, networkError(op, err)
		}
	}
	n.initHealth(o)

	n.logger.Info("identity node ready",
		"instance", n.instance.String(),
		"logical_nodes", len(n.logicalNodes),
		"directory", n.dir != nil,
		"namesync", n.syncer != nil,
	)
	return n, nil
}

func (n *Node) initNames() error {
	keys, err := n.cfg.Names.DecodeKeys()
	if err != nil {
		return err
	}
	regOpts := []names.Option{names.WithLogger(n.logger)}
	if len(keys) > 0 {
		n.keyring, err = names.NewAESGCMKeyring(keys)
		if err != nil {
			return err
		}
		regOpts = append(regOpts, names.WithDecrypter(n.keyring))
	}
	n.registry = names.NewRegistry(regOpts...)
	return nil
}

func (n *Node) initService(o *nodeOptions) error {
	genOpts := []idgen.Option{idgen.WithSecureRandom(n.cfg.Node.GetSecureRandom())}
	if o.clock != nil {
		genOpts = append(genOpts, idgen.WithClock(o.clock))
	}
	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	svc, err := nodeid.NewService(
		nodeid.WithGenerator(idgen.New(genOpts...)),
		nodeid.WithNameRegistry(n.registry),
		nodeid.WithLogger(n.logger),
		nodeid.WithMeterProvider(mp),
	)
	if err != nil {
		return err
	}
	n.svc = svc
	return nil
}

func (n *Node) initIdentity() error {
	if raw := n.cfg.Node.Instance; raw != "" {
		instance, err := n.svc.ParseInstanceNode(raw)
		if err != nil {
			return fmt.Errorf("node.instance: %w", err)
		}
		n.instance = instance
	} else {
		n.instance = n.svc.GenerateInstanceNode()
	}
	n.session = n.svc.GenerateInstanceNodeSession(n.instance)

	if name := n.cfg.Node.DisplayName; name != "" {
		if group := n.cfg.Node.EncryptionGroup; group != "" {
			blob, err := n.keyring.Seal(group, name)
			if err != nil {
				return fmt.Errorf("seal display name: %w", err)
			}
			n.encrypted = blob
			n.registry.AssociateEncryptedDisplayName(n.session, blob)
		} else {
			n.svc.AssociateDisplayName(n.session, name)
		}
	}

	for i, lc := range n.cfg.Node.LogicalNodes {
		var logical nodeid.LogicalNodeID
		if lc.Transient {
			logical = n.svc.GenerateTransientLogicalNode(n.instance)
		} else {
			var err error
			logical, err = n.svc.RecognizableLogicalNode(n.instance, lc.Recognition)
			if err != nil {
				return fmt.Errorf("node.logical_nodes[%d]: %w", i, err)
			}
		}
		ls := logical.CombineWithInstanceNodeSession(n.session)
		if lc.DisplayName != "" {
			n.svc.AssociateDisplayNameWithLogicalNode(ls, lc.DisplayName)
		}
		n.logicalNodes = append(n.logicalNodes, directory.LogicalNode{ID: ls, DisplayName: lc.DisplayName})
	}
	return nil
}

func (n *Node) tracerProvider(o *nodeOptions) trace.TracerProvider {
	if o.tracerProvider != nil {
		return o.tracerProvider
	}

	n.ownedTracer = serve.NewTracerProvider(n.cfg.Telemetry.GetServiceName(),
		[]attribute.KeyValue{
			attribute.String("nodeid.instance", n.instance.String()),
			attribute.String("nodeid.session", n.session.String()),
		},
		n.logger, o.spanProcessors...)
	return n.ownedTracer
}

func (n *Node) initServer(o *nodeOptions, tp trace.TracerProvider) error {
	sc := n.cfg.Server
	serverOpts := []serve.Option{
		serve.WithLogger(n.logger),
		serve.WithUnaryInterceptor(serve.UnaryInterceptor(n.svc,
			serve.WithTracerProvider(tp),
			serve.WithInterceptorLogger(n.logger),
		)),
	}
	if o.listener != nil {
		serverOpts = append(serverOpts, serve.WithListener(o.listener))
	}
	if sc != nil {
		serverOpts = append(serverOpts, serve.WithTLS(sc.TLSCertFile, sc.TLSKeyFile))
	}

	server, err := serve.NewServer(&serve.Config{
		Port:            sc.GetPort(),
		GracefulTimeout: sc.GetGracefulTimeout(),
	}, serverOpts...)
	if err != nil {
		return err
	}
	serve.RegisterNodeIdentifierServer(server.GRPCServer(),
		serve.NewNodeIdentifierServer(n.svc, serve.WithNameDumper(n.registry)))
	n.server = server
	return nil
}

func (n *Node) initDirectory(o *nodeOptions) error {
	var err error
	switch {
	case o.store != nil:
		var cfg directory.Config
		if n.cfg.Directory != nil {
			cfg = *n.cfg.Directory
		}
		n.dir, err = directory.NewWithStore(o.store, cfg, n.svc, directory.WithLogger(n.logger))
	case n.cfg.Directory != nil:
		n.dir, err = directory.New(*n.cfg.Directory, n.svc, directory.WithLogger(n.logger))
	}
	return err
}

func (n *Node) initHealth(o *nodeOptions) {
	n.reporter = health.NewReporter(n.server.HealthServer(),
		health.WithServices(serve.ServiceName),
		health.WithInterval(n.cfg.Health.GetInterval()),
		health.WithLogger(n.logger),
	)
	n.reporter.AddCheck("session", func(context.Context) health.HealthStatus {
		return health.SessionCheck(n.svc, n.session)
	})
	if n.dir != nil {
		n.reporter.AddCheck("directory", func(ctx context.Context) health.HealthStatus {
			return health.DirectoryCheck(ctx, n.dir, n.session)
		})
	}
	if n.dir != nil && o.store == nil {
		endpoints := n.cfg.Directory.Endpoints
		n.reporter.AddCheck("etcd", func(ctx context.Context) health.HealthStatus {
			return health.EndpointsCheck(ctx, endpoints)
		})
	}
	if n.syncer != nil {
		n.reporter.AddCheck("presence", func(ctx context.Context) health.HealthStatus {
			return health.PresenceCheck(ctx, n.syncer, n.session)
		})
	}
	if sc := n.cfg.Server; sc != nil && sc.TLSCertFile != "" {
		n.reporter.AddCheck("tls", func(context.Context) health.HealthStatus {
			return health.Combine(health.FileCheck(sc.TLSCertFile), health.FileCheck(sc.TLSKeyFile))
		})
	}
}

// Run publishes the node and serves until ctx is done. It announces the
// session in the directory, publishes names and heartbeats through Redis,
// follows both for remote names and reports health. Cancelling ctx
// withdraws the session and its names from both and returns nil.
func (n *Node) Run(ctx context.Context) error {
	const op = "Node.Run"

	n.mu.Lock()
	switch {
	case n.closed:
		n.mu.Unlock()
		return &Error{Op: op, Kind: KindLifecycle, Err: ErrClosed}
	case n.running:
		n.mu.Unlock()
		return &Error{Op: op, Kind: KindLifecycle, Err: ErrAlreadyRunning}
	}
	n.running = true
	n.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := n.publish(runCtx); err != nil {
		return networkError(op, err)
	}

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				n.logger.Warn("background task stopped", "task", name, "error", err)
			}
		}()
	}

	if n.dir != nil {
		spawn("directory follow", func(ctx context.Context) error {
			return n.dir.Follow(ctx, n.registry)
		})
	}
	if n.syncer != nil {
		spawn("name sync", func(ctx context.Context) error {
			return n.syncer.Run(ctx, n.registry)
		})
		spawn("heartbeat", func(ctx context.Context) error {
			n.syncer.KeepAlive(ctx, n.session, 0)
			return nil
		})
	}
	spawn("health", func(ctx context.Context) error {
		n.reporter.Run(ctx)
		return nil
	})

	err := n.server.Serve(runCtx)
	cancel()
	wg.Wait()

	n.withdraw()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return networkError(op, err)
	}
	n.logger.Info("identity node stopped")
	return nil
}

// withdraw removes the session from the directory and from Redis.
func (n *Node) withdraw() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n.dir != nil {
		if err := n.dir.Withdraw(ctx, n.session); err != nil {
			n.logger.Warn("failed to withdraw session from directory", "error", err)
		}
	}
	if n.syncer != nil {
		if err := n.syncer.Withdraw(ctx, n.session); err != nil {
			n.logger.Warn("failed to withdraw names", "error", err)
		}
	}
}

func (n *Node) publish(ctx context.Context) error {
	plaintext := n.cfg.Node.DisplayName
	if n.encrypted != "" {
		plaintext = ""
	}

	if n.dir != nil {
		err := n.dir.Announce(ctx, directory.Announcement{
			Session:       n.session,
			DisplayName:   plaintext,
			EncryptedName: n.encrypted,
			LogicalNodes:  n.logicalNodes,
			Endpoint:      n.cfg.Server.GetAdvertise(),
			StartedAt:     time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("announce session: %w", err)
		}
	}

	if n.syncer == nil {
		return nil
	}
	if err := n.syncer.Heartbeat(ctx, n.session); err != nil {
		return err
	}
	switch {
	case n.encrypted != "":
		if err := n.syncer.PublishEncryptedName(ctx, n.session, n.encrypted); err != nil {
			return err
		}
	case plaintext != "":
		if err := n.syncer.PublishName(ctx, n.session, plaintext); err != nil {
			return err
		}
	}
	for _, ln := range n.logicalNodes {
		if ln.DisplayName == "" {
			continue
		}
		if err := n.syncer.PublishName(ctx, ln.ID, ln.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// Close releases etcd, Redis and tracing resources. It is safe to call
// more than once.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	if n.server != nil {
		n.server.Stop()
	}
	if n.dir != nil {
		CloseWithLog(n.dir, n.logger, "directory")
	}
	if n.syncer != nil {
		CloseWithLog(n.syncer, n.logger, "namesync")
	}
	if n.ownedTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.ownedTracer.Shutdown(ctx); err != nil {
			return &Error{Op: "Node.Close", Kind: KindInternal, Err: err}
		}
	}
	return nil
}

// Service returns the node identifier service.
func (n *Node) Service() *nodeid.Service { return n.svc }

// Registry returns the name registry.
func (n *Node) Registry() *names.Registry { return n.registry }

// Instance returns the instance node identifier.
func (n *Node) Instance() nodeid.InstanceNodeID { return n.instance }

// Session returns the instance session created at startup.
func (n *Node) Session() nodeid.InstanceNodeSessionID { return n.session }

// LogicalNodes returns the hosted logical node sessions.
func (n *Node) LogicalNodes() []directory.LogicalNode {
	return append([]directory.LogicalNode(nil), n.logicalNodes...)
}

// Health returns the latest combined health status.
func (n *Node) Health() health.HealthStatus { return n.reporter.Last() }

// Port returns the gRPC port.
func (n *Node) Port() int { return n.server.Port() }
