package namesync

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/identity/nodeid"
)

const (
	// DefaultPrefix is the key prefix used when Options.Prefix is empty.
	DefaultPrefix = "identity"

	// DefaultHeartbeatTTL is how long a session stays alive without a
	// heartbeat.
	DefaultHeartbeatTTL = 30 * time.Second
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration

	// Prefix is prepended to every key and channel name.
	Prefix string

	// HeartbeatTTL is the expiry of session presence keys.
	HeartbeatTTL time.Duration
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOrigin overrides the random origin tag.
func WithOrigin(origin string) Option {
	return func(c *Client) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// Client publishes and receives display-name updates through Redis.
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	client       *redis.Client
	svc          *nodeid.Service
	logger       *slog.Logger
	origin       string
	prefix       string
	heartbeatTTL time.Duration
}

// New connects to Redis. svc is used to validate every identifier read back
// from Redis.
func New(opts Options, svc *nodeid.Service, options ...Option) (*Client, error) {
	if svc == nil {
		return nil, fmt.Errorf("namesync needs a node identifier service")
	}
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.HeartbeatTTL <= 0 {
		opts.HeartbeatTTL = DefaultHeartbeatTTL
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c := &Client{
		client:       client,
		svc:          svc,
		logger:       slog.Default(),
		origin:       uuid.New().String(),
		prefix:       opts.Prefix,
		heartbeatTTL: opts.HeartbeatTTL,
	}
	for _, o := range options {
		o(c)
	}
	c.logger = c.logger.With("component", "namesync", "origin", c.origin)
	return c, nil
}

// Origin returns the tag attached to this client's updates.
func (c *Client) Origin() string {
	return c.origin
}

// PublishName stores and broadcasts a plaintext display name for a
// session-bearing identifier.
func (c *Client) PublishName(ctx context.Context, id nodeid.NodeIdentifier, name string) error {
	return c.publish(ctx, id, Update{Name: name})
}

// PublishEncryptedName stores and broadcasts an encrypted name blob.
func (c *Client) PublishEncryptedName(ctx context.Context, id nodeid.NodeIdentifier, blob string) error {
	return c.publish(ctx, id, Update{EncryptedName: blob})
}

func (c *Client) publish(ctx context.Context, id nodeid.NodeIdentifier, u Update) error {
	if id == nil || id.IsZero() {
		return fmt.Errorf("cannot publish a name for a zero identifier")
	}
	u.ID = id.String()
	u.Type = id.Type().String()
	u.Origin = c.origin
	u.PublishedAt = time.Now().UnixMilli()
	if err := u.Validate(); err != nil {
		return fmt.Errorf("invalid update for %s: %w", u.ID, err)
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.namesKey(), u.ID, data)
	pipe.Publish(ctx, c.updatesChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish name for %s: %w", u.ID, err)
	}
	return nil
}

// Snapshot returns every update stored in the names hash whose instance
// session still has a heartbeat. Entries that do not decode are skipped;
// entries of sessions without a heartbeat are removed from the hash.
func (c *Client) Snapshot(ctx context.Context) ([]Update, error) {
	entries, err := c.client.HGetAll(ctx, c.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}

	updates := make([]Update, 0, len(entries))
	for field, raw := range entries {
		var u Update
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			c.logger.Warn("skipping undecodable name entry", "field", field, "error", err)
			continue
		}
		if u.ID != field {
			c.logger.Warn("skipping name entry stored under foreign field", "field", field, "id", u.ID)
			continue
		}
		updates = append(updates, u)
	}
	return c.live(ctx, updates)
}

// live keeps the updates whose instance session is alive and prunes the rest
// from the names hash.
func (c *Client) live(ctx context.Context, updates []Update) ([]Update, error) {
	if len(updates) == 0 {
		return updates, nil
	}

	pipe := c.client.Pipeline()
	exists := make([]*redis.IntCmd, len(updates))
	for i, u := range updates {
		exists[i] = pipe.Exists(ctx, c.presenceKey(sessionOf(u.ID)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read heartbeats: %w", err)
	}

	alive := make([]Update, 0, len(updates))
	var stale []string
	for i, u := range updates {
		if exists[i].Val() > 0 {
			alive = append(alive, u)
			continue
		}
		stale = append(stale, u.ID)
	}
	if len(stale) > 0 {
		if err := c.client.HDel(ctx, c.namesKey(), stale...).Err(); err != nil {
			c.logger.Warn("failed to prune stale names", "entries", len(stale), "error", err)
		} else {
			c.logger.Debug("pruned stale names", "entries", len(stale))
		}
	}
	return alive, nil
}

// Withdraw removes the names of session and of its logical node sessions,
// deletes its presence key and tells the other clients to forget it.
func (c *Client) Withdraw(ctx context.Context, session nodeid.InstanceNodeSessionID) error {
	if session.IsZero() {
		return fmt.Errorf("cannot withdraw a zero session")
	}

	fields, err := c.client.HKeys(ctx, c.namesKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to read names: %w", err)
	}
	var owned []string
	for _, f := range fields {
		if sessionOf(f) == session.String() {
			owned = append(owned, f)
		}
	}

	u := Update{
		ID:          session.String(),
		Type:        session.Type().String(),
		Removed:     true,
		Origin:      c.origin,
		PublishedAt: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal removal: %w", err)
	}

	pipe := c.client.TxPipeline()
	if len(owned) > 0 {
		pipe.HDel(ctx, c.namesKey(), owned...)
	}
	pipe.Del(ctx, c.aliveKey(session))
	pipe.Publish(ctx, c.updatesChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to withdraw %s: %w", session, err)
	}

	c.logger.Info("session withdrawn", "session", session.String(), "names", len(owned))
	return nil
}

// Subscribe streams updates published by other clients until ctx is done.
func (c *Client) Subscribe(ctx context.Context) (<-chan Update, error) {
	pubsub := c.client.Subscribe(ctx, c.updatesChannel())

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.updatesChannel(), err)
	}

	out := make(chan Update)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					c.logger.Warn("skipping undecodable name update", "error", err)
					continue
				}
				if u.Origin == c.origin {
					continue
				}

				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Apply validates u through the service and hands it to sink. A removal
// makes sink forget the session.
func (c *Client) Apply(sink Sink, u Update) error {
	t, err := u.validate()
	if err != nil {
		return fmt.Errorf("invalid update: %w", err)
	}
	id, err := c.svc.Parse(u.ID, t)
	if err != nil {
		return err
	}

	if u.Removed {
		sink.Forget(id.(nodeid.InstanceNodeSessionID))
		return nil
	}
	if u.EncryptedName != "" {
		sink.AssociateEncryptedDisplayName(id, u.EncryptedName)
		return nil
	}
	switch v := id.(type) {
	case nodeid.InstanceNodeSessionID:
		sink.AssociateDisplayName(v, u.Name)
	case nodeid.LogicalNodeSessionID:
		sink.AssociateDisplayNameWithLogicalNode(v, u.Name)
	}
	return nil
}

// Run applies the current snapshot to sink and then every subsequent update
// until ctx is done. Invalid updates are logged and skipped.
func (c *Client) Run(ctx context.Context, sink Sink) error {
	updates, err := c.Subscribe(ctx)
	if err != nil {
		return err
	}

	snapshot, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, u := range snapshot {
		c.applyLogged(sink, u)
	}
	c.logger.Info("name snapshot applied", "entries", len(snapshot))

	for u := range updates {
		c.applyLogged(sink, u)
	}
	return ctx.Err()
}

func (c *Client) applyLogged(sink Sink, u Update) {
	if err := c.Apply(sink, u); err != nil {
		c.logger.Warn("dropping name update", "id", u.ID, "from", u.Origin, "error", err)
		return
	}
	c.logger.Debug("name update applied", "id", u.ID, "from", u.Origin)
}

// Heartbeat refreshes the presence key of a session.
func (c *Client) Heartbeat(ctx context.Context, session nodeid.InstanceNodeSessionID) error {
	if err := c.client.Set(ctx, c.aliveKey(session), c.origin, c.heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("failed to set heartbeat for %s: %w", session, err)
	}
	return nil
}

// Alive reports whether the presence key of a session exists.
func (c *Client) Alive(ctx context.Context, session nodeid.InstanceNodeSessionID) (bool, error) {
	err := c.client.Get(ctx, c.aliveKey(session)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("failed to read heartbeat for %s: %w", session, err)
	}
}

// KeepAlive sends a heartbeat every interval until ctx is done.
func (c *Client) KeepAlive(ctx context.Context, session nodeid.InstanceNodeSessionID, interval time.Duration) {
	if interval <= 0 {
		interval = c.heartbeatTTL / 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := c.Heartbeat(ctx, session); err != nil && ctx.Err() == nil {
			c.logger.Warn("heartbeat failed", "session", session.String(), "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) namesKey() string {
	return c.prefix + ":names"
}

func (c *Client) updatesChannel() string {
	return c.prefix + ":names:updates"
}

func (c *Client) aliveKey(session nodeid.InstanceNodeSessionID) string {
	return c.presenceKey(session.String())
}

func (c *Client) presenceKey(session string) string {
	return c.prefix + ":session:" + session + ":alive"
}

// sessionOf maps the canonical form of a session-bearing identifier to the
// canonical form of its instance session: "i::s" and "i:l:s" both give
// "i::s". Anything else is returned unchanged.
func sessionOf(id string) string {
	first := strings.IndexByte(id, ':')
	last := strings.LastIndexByte(id, ':')
	if first < 0 || first == last {
		return id
	}
	return id[:first] + "::" + id[last+1:]
}
