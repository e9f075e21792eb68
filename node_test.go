package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/zero-day-ai/identity/config"
	"github.com/zero-day-ai/identity/directory"
	"github.com/zero-day-ai/identity/namesync"
	"github.com/zero-day-ai/identity/nodeid"
	"github.com/zero-day-ai/identity/serve"
)

const testInstance = "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		Node: config.NodeConfig{
			Instance:    testInstance,
			DisplayName: "gateway",
			LogicalNodes: []config.LogicalNodeConfig{
				{Recognition: "ingest", DisplayName: "ingest worker"},
				{Transient: true},
			},
		},
		Directory: &directory.Config{Endpoints: []string{"unused:2379"}, Namespace: "test", TTL: 1},
		Health:    &config.HealthConfig{Interval: "20ms"},
	}
}

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := baseConfig()
	cfg.Node.Instance = "not-hex"
	_, err = New(cfg, WithLogger(discardLogger()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})

	var idErr *Error
	require.True(t, errors.As(err, &idErr))
	assert.Equal(t, "identity.New", idErr.Op)
}

func TestNewBuildsIdentity(t *testing.T) {
	cfg := baseConfig()
	cfg.Directory = nil

	n, err := New(cfg, WithLogger(discardLogger()), WithListener(bufconn.Listen(1024*1024)))
	require.NoError(t, err)
	defer n.Close()

	assert.Equal(t, testInstance, n.Instance().String())
	assert.True(t, n.Session().ToInstanceNode().Equal(n.Instance()))
	assert.Equal(t, "gateway", n.Session().DisplayName())
	assert.Equal(t, "gateway", n.Instance().DisplayName())

	logical := n.LogicalNodes()
	require.Len(t, logical, 2)
	assert.Equal(t, "r_ingest", logical[0].ID.LogicalPart())
	assert.Equal(t, "ingest worker", logical[0].ID.DisplayName())
	assert.True(t, logical[1].ID.IsTransientLogicalNode())
	assert.True(t, logical[1].ID.IsSameInstanceNodeSessionAs(n.Session()))
	assert.Equal(t, "gateway", logical[1].ID.DisplayName(), "unnamed logical sessions fall back to the instance session")

	recognition, ok := logical[0].ID.LogicalNodeRecognitionPart()
	require.True(t, ok)
	assert.Equal(t, "ingest", recognition)

	assert.Equal(t, "not evaluated", n.Health().Message)
}

func TestNewGeneratesInstance(t *testing.T) {
	n, err := New(&config.Config{}, WithLogger(discardLogger()), WithListener(bufconn.Listen(1024)))
	require.NoError(t, err)
	defer n.Close()

	assert.Len(t, n.Instance().InstancePart(), nodeid.InstancePartLength)
	assert.Empty(t, n.LogicalNodes())
	assert.Equal(t, nodeid.UnresolvedDisplayName, n.Session().DisplayName())
}

func TestEncryptedDisplayName(t *testing.T) {
	cfg := baseConfig()
	cfg.Directory = nil
	cfg.Node.EncryptionGroup = "ops"
	cfg.Names = &config.NamesConfig{Keys: map[string]string{
		"ops": base64.StdEncoding.EncodeToString(make([]byte, 32)),
	}}

	n, err := New(cfg, WithLogger(discardLogger()), WithListener(bufconn.Listen(1024)))
	require.NoError(t, err)
	defer n.Close()

	assert.Equal(t, "gateway", n.Session().DisplayName())

	b, ok := n.Registry().Binding(n.Session())
	require.True(t, ok)
	group, ciphertext, ok := b.EncryptedName()
	require.True(t, ok)
	assert.Equal(t, "ops", group)
	assert.NotContains(t, ciphertext, "gateway")
}

func TestRun(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()
	lis := bufconn.Listen(1024 * 1024)
	spans := tracetest.NewSpanRecorder()

	cfg := baseConfig()
	cfg.NameSync = &config.NameSyncConfig{URL: fmt.Sprintf("redis://%s", mr.Addr()), HeartbeatTTL: "3s"}

	n, err := New(cfg,
		WithLogger(discardLogger()),
		WithListener(lis),
		WithDirectoryStore(store),
		WithSpanProcessor(spans),
	)
	require.NoError(t, err)
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	sessionKey := "/test/sessions/" + testInstance + "/" + n.Session().SessionPart()
	require.Eventually(t, func() bool { return store.has(sessionKey) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return n.Health().IsHealthy() }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists("identity:session:"+n.Session().String()+":alive"))
	assert.Equal(t, []string{"session", "directory", "presence"}, checkNames(n.Health().Details["checks"]))

	published := mr.HGet("identity:names", n.Session().String())
	assert.Contains(t, published, `"gateway"`)
	assert.NotEmpty(t, mr.HGet("identity:names", n.LogicalNodes()[0].ID.String()))

	assert.ErrorIs(t, n.Run(ctx), ErrAlreadyRunning)

	t.Run("serves the node identifier service", func(t *testing.T) {
		clientSvc, err := nodeid.NewService(nodeid.WithLogger(discardLogger()))
		require.NoError(t, err)
		client := serve.NewClient(dialBufconn(t, lis), clientSvc)

		name, err := client.DisplayName(ctx, n.LogicalNodes()[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "ingest worker", name)
		assert.NotEmpty(t, spans.Ended())
	})

	t.Run("learns names from redis", func(t *testing.T) {
		peerSvc, err := nodeid.NewService(nodeid.WithLogger(discardLogger()))
		require.NoError(t, err)
		peer, err := namesync.New(namesync.Options{URL: fmt.Sprintf("redis://%s", mr.Addr())}, peerSvc,
			namesync.WithLogger(discardLogger()))
		require.NoError(t, err)
		defer peer.Close()

		remote, err := peerSvc.ParseInstanceNodeSession("ffeeddccbbaa99887766554433221100::00000009aa")
		require.NoError(t, err)
		require.NoError(t, peer.PublishName(ctx, remote, "remote-peer"))

		require.Eventually(t, func() bool {
			return n.Registry().ResolveDisplayName(remote) == "remote-peer"
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("learns names from the directory", func(t *testing.T) {
		peerSvc, err := nodeid.NewService(nodeid.WithLogger(discardLogger()))
		require.NoError(t, err)
		peerDir, err := directory.NewWithStore(store, directory.Config{Namespace: "test", TTL: 1}, peerSvc,
			directory.WithLogger(discardLogger()))
		require.NoError(t, err)
		defer peerDir.Close()

		remote, err := peerSvc.ParseInstanceNodeSession("11223344556677889900aabbccddeeff::0000000aaa")
		require.NoError(t, err)
		require.NoError(t, peerDir.Announce(ctx, directory.Announcement{Session: remote, DisplayName: "directory-peer"}))

		require.Eventually(t, func() bool {
			return n.Registry().ResolveDisplayName(remote) == "directory-peer"
		}, 2*time.Second, 10*time.Millisecond)
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.False(t, store.has(sessionKey), "session is withdrawn on shutdown")
	assert.False(t, mr.Exists("identity:session:"+n.Session().String()+":alive"))
	assert.Empty(t, mr.HGet("identity:names", n.Session().String()))
	assert.Empty(t, mr.HGet("identity:names", n.LogicalNodes()[0].ID.String()))
	assert.Contains(t, mr.HGet("identity:names", "ffeeddccbbaa99887766554433221100::00000009aa"), "remote-peer",
		"names of other sessions are kept")
}

func TestRunAfterClose(t *testing.T) {
	cfg := baseConfig()
	cfg.Directory = nil

	n, err := New(cfg, WithLogger(discardLogger()), WithListener(bufconn.Listen(1024)))
	require.NoError(t, err)
	require.NoError(t, n.Close())
	require.NoError(t, n.Close())

	err = n.Run(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, &Error{Kind: KindLifecycle})
}

func checkNames(v any) []string {
	m, _ := v.(map[string]any)
	var out []string
	for _, name := range []string{"session", "directory", "presence", "tls"} {
		if _, ok := m[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
