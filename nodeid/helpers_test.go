package nodeid

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testInstance  = "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d"
	otherInstance = "ffeeddccbbaa99887766554433221100"
	testSession   = "1122334455"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc, err := NewService(opts...)
	require.NoError(t, err)
	return svc
}

// requirePanicsWith runs fn and requires it to panic with an error matching target.
func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()

	defer func() {
		t.Helper()
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		require.ErrorIs(t, err, target)
	}()
	fn()
}

// recordingRegistry is a minimal NameRegistry for forwarding tests.
type recordingRegistry struct {
	mu       sync.Mutex
	sessions map[string]string
	logical  map[string]string
}

func newRecordingRegistry() *recordingRegistry {
	return &recordingRegistry{
		sessions: make(map[string]string),
		logical:  make(map[string]string),
	}
}

func (r *recordingRegistry) AssociateDisplayName(id InstanceNodeSessionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id.String()] = name
}

func (r *recordingRegistry) AssociateDisplayNameWithLogicalNode(id LogicalNodeSessionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logical[id.String()] = name
}

func (r *recordingRegistry) ResolveDisplayName(id NodeIdentifier) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.logical[id.String()]; ok {
		return name
	}
	if name, ok := r.sessions[id.String()]; ok {
		return name
	}
	return UnresolvedDisplayName
}

func (r *recordingRegistry) PrintAllNameAssociations(w io.Writer, introText string) error {
	_, err := io.WriteString(w, introText+"\n")
	return err
}
