package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/identity/nodeid"
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("directory is closed")

// Store is the subset of the etcd client API the directory needs.
// *clientv3.Client satisfies it.
type Store interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	KeepAliveOnce(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseKeepAliveResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

// LogicalNode is a logical node session announced together with its
// instance session.
type LogicalNode struct {
	ID          nodeid.LogicalNodeSessionID
	DisplayName string
}

// Announcement is one instance session as published in the directory.
type Announcement struct {
	// Session is the announced instance session.
	Session nodeid.InstanceNodeSessionID

	// DisplayName is the plaintext name, if any.
	DisplayName string

	// EncryptedName is an encrypted name blob ("<group>:<ciphertext>"), if any.
	EncryptedName string

	// LogicalNodes lists logical node sessions hosted by this session.
	LogicalNodes []LogicalNode

	// Endpoint is where the session can be reached, e.g. "host:port".
	Endpoint string

	// StartedAt is when the session started.
	StartedAt time.Time
}

// record is the JSON form stored in etcd. Identifiers are kept as canonical
// strings and re-parsed on the way out.
type record struct {
	Session       string            `json:"session"`
	DisplayName   string            `json:"display_name,omitempty"`
	EncryptedName string            `json:"encrypted_name,omitempty"`
	LogicalNodes  map[string]string `json:"logical_nodes,omitempty"`
	Endpoint      string            `json:"endpoint,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
}

// ownedRecord is what Announce stored, kept for re-announcing after the
// lease is lost.
type ownedRecord struct {
	key  string
	data string
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Directory announces and discovers instance sessions in etcd.
//
// Thread-safety: all methods are safe for concurrent use.
type Directory struct {
	store     Store
	conn      *clientv3.Client
	svc       *nodeid.Service
	logger    *slog.Logger
	namespace string
	ttl       int

	mu         sync.RWMutex
	owned      map[string]ownedRecord
	leases     map[string]clientv3.LeaseID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// New connects to etcd and returns a Directory that owns the connection.
func New(cfg Config, svc *nodeid.Service, opts ...Option) (*Directory, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("directory endpoints cannot be empty")
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.dialTimeout(),
	}
	tlsCfg, err := clientTLS(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsCfg

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.dialTimeout())
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	d, err := NewWithStore(cli, cfg, svc, opts...)
	if err != nil {
		cli.Close()
		return nil, err
	}
	d.conn = cli
	return d, nil
}

// NewWithStore returns a Directory on top of an existing store. The caller
// keeps ownership of store.
func NewWithStore(store Store, cfg Config, svc *nodeid.Service, opts ...Option) (*Directory, error) {
	if store == nil {
		return nil, fmt.Errorf("directory store cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("directory needs a node identifier service")
	}

	d := &Directory{
		store:      store,
		svc:        svc,
		logger:     slog.Default(),
		namespace:  cfg.namespace(),
		ttl:        cfg.ttl(),
		owned:      make(map[string]ownedRecord),
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "directory", "namespace", d.namespace)
	return d, nil
}

// Announce publishes a under a fresh lease and keeps the lease alive until
// Withdraw or Close. If the lease is lost the record is published again under
// a new lease. Announcing the same session again replaces the record.
func (d *Directory) Announce(ctx context.Context, a Announcement) error {
	if a.Session.IsZero() {
		return fmt.Errorf("announcement needs an instance session")
	}

	r := record{
		Session:       a.Session.String(),
		DisplayName:   a.DisplayName,
		EncryptedName: a.EncryptedName,
		Endpoint:      a.Endpoint,
		StartedAt:     a.StartedAt,
	}
	if len(a.LogicalNodes) > 0 {
		r.LogicalNodes = make(map[string]string, len(a.LogicalNodes))
		for _, ln := range a.LogicalNodes {
			if !ln.ID.IsSameInstanceNodeSessionAs(a.Session) {
				return fmt.Errorf("logical node %s does not belong to session %s", ln.ID, a.Session)
			}
			r.LogicalNodes[ln.ID.String()] = ln.DisplayName
		}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal announcement: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	key := a.Session.String()
	if cancel, ok := d.cancelFns[key]; ok {
		cancel()
		delete(d.cancelFns, key)
	}

	lease, err := d.store.Grant(ctx, int64(d.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	rec := ownedRecord{key: d.sessionKey(a.Session), data: string(data)}
	if _, err := d.store.Put(ctx, rec.key, rec.data, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to announce session: %w", err)
	}
	if old, ok := d.leases[key]; ok && old != lease.ID {
		if _, err := d.store.Revoke(ctx, old); err != nil {
			d.logger.Warn("failed to revoke replaced lease", "session", key, "error", err)
		}
	}
	d.owned[key] = rec
	d.leases[key] = lease.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	d.cancelFns[key] = cancel
	d.wg.Add(1)
	go d.keepalive(keepaliveCtx, lease.ID, key)

	d.logger.Info("session announced", "session", key, "display_name", a.DisplayName, "lease", int64(lease.ID))
	return nil
}

// Withdraw revokes the lease of an announced session, removing its record.
// Withdrawing a session that was not announced is a no-op.
func (d *Directory) Withdraw(ctx context.Context, session nodeid.InstanceNodeSessionID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	key := session.String()
	if cancel, ok := d.cancelFns[key]; ok {
		cancel()
		delete(d.cancelFns, key)
	}
	delete(d.owned, key)
	lease, ok := d.leases[key]
	if !ok {
		return nil
	}
	if _, err := d.store.Revoke(ctx, lease); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	delete(d.leases, key)

	d.logger.Info("session withdrawn", "session", key)
	return nil
}

// Owns reports whether session was announced through this directory and not
// withdrawn since, whether or not its lease is currently live.
func (d *Directory) Owns(session nodeid.InstanceNodeSessionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.owned[session.String()]
	return ok
}

// Announced reports whether this directory currently holds a lease for
// session.
func (d *Directory) Announced(session nodeid.InstanceNodeSessionID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.leases[session.String()]
	return ok
}

// Discover returns every announced session, sorted by identifier.
func (d *Directory) Discover(ctx context.Context) ([]Announcement, error) {
	return d.discover(ctx, d.sessionsPrefix())
}

// DiscoverInstance returns the announced sessions of one instance, oldest
// first.
func (d *Directory) DiscoverInstance(ctx context.Context, instance nodeid.InstanceNodeID) ([]Announcement, error) {
	return d.discover(ctx, d.sessionsPrefix()+instance.String()+"/")
}

// Watch sends the full list of announced sessions now and after every change
// below the namespace. The channel is closed when ctx is done, the watch
// fails, or the directory is closed.
func (d *Directory) Watch(ctx context.Context) (<-chan []Announcement, error) {
	initial, err := d.Discover(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	ch := make(chan []Announcement, 1)
	ch <- initial

	watchChan := d.store.Watch(ctx, d.sessionsPrefix(), clientv3.WithPrefix())

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.closedChan:
				return
			case resp, ok := <-watchChan:
				if !ok {
					return
				}
				if err := resp.Err(); err != nil {
					d.logger.Warn("directory watch failed", "error", err)
					return
				}

				current, err := d.Discover(ctx)
				if err != nil {
					d.logger.Warn("failed to refresh directory", "error", err)
					continue
				}

				select {
				case ch <- current:
				case <-ctx.Done():
					return
				case <-d.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close stops all keepalives and watches. If the directory dialed etcd
// itself, the connection is closed too. Leases are left to expire.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, cancel := range d.cancelFns {
		cancel()
	}
	d.cancelFns = make(map[string]context.CancelFunc)
	close(d.closedChan)
	d.mu.Unlock()

	d.wg.Wait()

	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *Directory) discover(ctx context.Context, prefix string) ([]Announcement, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	resp, err := d.store.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover sessions: %w", err)
	}

	out := make([]Announcement, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		a, err := d.decode(kv.Value)
		if err != nil {
			d.logger.Warn("skipping directory record", "key", string(kv.Key), "error", err)
			continue
		}
		if want := d.sessionKey(a.Session); want != string(kv.Key) {
			d.logger.Warn("skipping directory record stored under foreign key",
				"key", string(kv.Key), "session", a.Session.String())
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Session.String() < out[j].Session.String() })
	return out, nil
}

// decode turns a stored record back into an Announcement, re-parsing every
// identifier through the service.
func (d *Directory) decode(data []byte) (Announcement, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Announcement{}, fmt.Errorf("invalid record: %w", err)
	}

	session, err := d.svc.ParseInstanceNodeSession(rec.Session)
	if err != nil {
		return Announcement{}, err
	}

	a := Announcement{
		Session:       session,
		DisplayName:   rec.DisplayName,
		EncryptedName: rec.EncryptedName,
		Endpoint:      rec.Endpoint,
		StartedAt:     rec.StartedAt,
	}
	for s, name := range rec.LogicalNodes {
		ln, err := d.svc.ParseLogicalNodeSession(s)
		if err != nil {
			return Announcement{}, err
		}
		if !ln.IsSameInstanceNodeSessionAs(session) {
			return Announcement{}, fmt.Errorf("logical node %s does not belong to session %s", ln, session)
		}
		a.LogicalNodes = append(a.LogicalNodes, LogicalNode{ID: ln, DisplayName: name})
	}
	sort.Slice(a.LogicalNodes, func(i, j int) bool {
		return a.LogicalNodes[i].ID.String() < a.LogicalNodes[j].ID.String()
	})
	return a, nil
}

// keepalive renews the lease every TTL/3 until ctx is canceled. A lost lease
// is replaced by re-announcing the session, retried on every tick.
func (d *Directory) keepalive(ctx context.Context, lease clientv3.LeaseID, key string) {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Duration(d.ttl) * time.Second / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closedChan:
			return
		case <-ticker.C:
			_, err := d.store.KeepAliveOnce(ctx, lease)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("lease lost", "session", key, "error", err)

			renewed, err := d.reannounce(ctx, key, lease)
			switch {
			case errors.Is(err, errSuperseded):
				return
			case err != nil:
				d.logger.Warn("failed to re-announce session", "session", key, "error", err)
			default:
				d.logger.Info("session re-announced", "session", key, "lease", int64(renewed))
				lease = renewed
			}
		}
	}
}

var errSuperseded = errors.New("announcement superseded")

// reannounce publishes the owned record of key under a new lease. It returns
// errSuperseded if the session was withdrawn or announced again meanwhile.
func (d *Directory) reannounce(ctx context.Context, key string, lost clientv3.LeaseID) (clientv3.LeaseID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.owned[key]
	if d.closed || ctx.Err() != nil || !ok || d.leases[key] != lost {
		return 0, errSuperseded
	}

	lease, err := d.store.Grant(ctx, int64(d.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to create lease: %w", err)
	}
	if _, err := d.store.Put(ctx, rec.key, rec.data, clientv3.WithLease(lease.ID)); err != nil {
		if _, rerr := d.store.Revoke(ctx, lease.ID); rerr != nil {
			d.logger.Debug("failed to revoke unused lease", "session", key, "error", rerr)
		}
		return 0, fmt.Errorf("failed to announce session: %w", err)
	}
	if _, err := d.store.Revoke(ctx, lost); err != nil {
		d.logger.Debug("failed to revoke lost lease", "session", key, "error", err)
	}
	d.leases[key] = lease.ID
	return lease.ID, nil
}

// sessionsPrefix is /{namespace}/sessions/.
func (d *Directory) sessionsPrefix() string {
	return "/" + strings.Trim(d.namespace, "/") + "/sessions/"
}

// sessionKey is /{namespace}/sessions/{instancePart}/{sessionPart}.
func (d *Directory) sessionKey(s nodeid.InstanceNodeSessionID) string {
	return d.sessionsPrefix() + s.InstancePart() + "/" + s.SessionPart()
}
