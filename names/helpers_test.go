package names

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/identity/nodeid"
)

const (
	instanceA = "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d"
	instanceB = "ffeeddccbbaa99887766554433221100"
	sessionA1 = "00000001aa"
	sessionA2 = "00000002bb"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newWiredService returns a service whose identifiers resolve through reg.
func newWiredService(t *testing.T, reg *Registry) *nodeid.Service {
	t.Helper()

	svc, err := nodeid.NewService(
		nodeid.WithNameRegistry(reg),
		nodeid.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	return svc
}

func mustSession(t *testing.T, svc *nodeid.Service, instance, session string) nodeid.InstanceNodeSessionID {
	t.Helper()

	id, err := svc.ParseInstanceNodeSession(instance + "::" + session)
	require.NoError(t, err)
	return id
}

func mustLogicalSession(t *testing.T, svc *nodeid.Service, instance, logical, session string) nodeid.LogicalNodeSessionID {
	t.Helper()

	id, err := svc.ParseLogicalNodeSession(instance + ":" + logical + ":" + session)
	require.NoError(t, err)
	return id
}
