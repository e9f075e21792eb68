package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  &Error{Op: "Node.Run", Kind: KindLifecycle},
			want: "identity: Node.Run: lifecycle",
		},
		{
			name: "with cause",
			err:  &Error{Op: "Node.Run", Kind: KindNetwork, Err: errors.New("connection refused")},
			want: "identity: Node.Run (network): connection refused",
		},
		{
			name: "with context",
			err: &Error{
				Op:      "identity.New",
				Kind:    KindConfiguration,
				Err:     errors.New("bad port"),
				Context: map[string]any{"port": -1},
			},
			want: "identity: identity.New (configuration): bad port [context: map[port:-1]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := configError("identity.New", errors.New("node.instance is not hex"))

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, &Error{Kind: KindConfiguration})
	assert.ErrorIs(t, err, &Error{Kind: KindConfiguration, Op: "identity.New"})
	assert.NotErrorIs(t, err, &Error{Kind: KindConfiguration, Op: "Node.Run"})
	assert.NotErrorIs(t, err, &Error{Kind: KindNetwork})
	assert.NotErrorIs(t, err, ErrClosed)
	assert.False(t, err.Is(nil))

	wrapped := fmt.Errorf("starting: %w", err)
	var target *Error
	require.ErrorAs(t, wrapped, &target)
	assert.Equal(t, KindConfiguration, target.Kind)
}

func TestErrorWithContext(t *testing.T) {
	base := networkError("Node.Run", errors.New("dial tcp: timeout")).WithContext(map[string]any{"endpoint": "etcd:2379"})
	extended := base.WithContext(map[string]any{"attempt": 2})

	assert.Equal(t, map[string]any{"endpoint": "etcd:2379"}, base.Context)
	assert.Equal(t, map[string]any{"endpoint": "etcd:2379", "attempt": 2}, extended.Context)
	assert.Equal(t, KindNetwork, extended.Kind)
	assert.Equal(t, base.Err, extended.Err)
}
