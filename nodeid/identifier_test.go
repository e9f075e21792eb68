package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc            *Service
	instance       InstanceNodeID
	session        InstanceNodeSessionID
	logical        LogicalNodeID
	logicalSession LogicalNodeSessionID
	otherSession   InstanceNodeSessionID
	byType         map[Type]NodeIdentifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	svc := newTestService(t)
	f := fixture{svc: svc}

	var err error
	f.instance, err = svc.ParseInstanceNode(testInstance)
	require.NoError(t, err)
	f.session, err = svc.ParseInstanceNodeSession(testInstance + "::" + testSession)
	require.NoError(t, err)
	f.logical, err = svc.ParseLogicalNode(testInstance + ":workerA")
	require.NoError(t, err)
	f.logicalSession, err = svc.ParseLogicalNodeSession(testInstance + ":workerA:" + testSession)
	require.NoError(t, err)
	f.otherSession, err = svc.ParseInstanceNodeSession(otherInstance + "::" + testSession)
	require.NoError(t, err)

	f.byType = map[Type]NodeIdentifier{
		TypeInstanceNode:        f.instance,
		TypeInstanceNodeSession: f.session,
		TypeLogicalNode:         f.logical,
		TypeLogicalNodeSession:  f.logicalSession,
	}
	return f
}

func TestCanonicalStrings(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d", f.instance.String())
	assert.Equal(t, "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d::1122334455", f.session.String())
	assert.Equal(t, "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d:workerA", f.logical.String())
	assert.Equal(t, "0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d:workerA:1122334455", f.logicalSession.String())

	assert.Equal(t, f.session.String(), f.session.InstanceSessionString())
	assert.Equal(t, f.logical.String(), f.logical.LogicalNodeString())
	assert.Equal(t, f.session.String(), f.logicalSession.InstanceSessionString())
	assert.Equal(t, f.logical.String(), f.logicalSession.LogicalNodeString())
	assert.Equal(t, f.logicalSession.String(), f.logicalSession.LogicalNodeSessionString())
}

func TestConversionMatrix(t *testing.T) {
	f := newFixture(t)

	const (
		l0  = testInstance + ":0"
		ls0 = testInstance + ":0:" + testSession
	)

	ops := []struct {
		name   string
		target Type
		valid  map[Type]string
		run    func(t *testing.T, src NodeIdentifier) NodeIdentifier
	}{
		{
			name:   "ToInstanceNode",
			target: TypeInstanceNode,
			valid: map[Type]string{
				TypeInstanceNode:        testInstance,
				TypeInstanceNodeSession: testInstance,
				TypeLogicalNode:         testInstance,
				TypeLogicalNodeSession:  testInstance,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier { return src.ToInstanceNode() },
		},
		{
			name:   "ToInstanceNodeSession",
			target: TypeInstanceNodeSession,
			valid: map[Type]string{
				TypeLogicalNodeSession: testInstance + "::" + testSession,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier { return ToInstanceNodeSession(src) },
		},
		{
			name:   "ToLogicalNode",
			target: TypeLogicalNode,
			valid: map[Type]string{
				TypeLogicalNodeSession: testInstance + ":workerA",
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier { return ToLogicalNode(src) },
		},
		{
			name:   "ToDefaultLogicalNode",
			target: TypeLogicalNode,
			valid: map[Type]string{
				TypeInstanceNode:        l0,
				TypeInstanceNodeSession: l0,
				TypeLogicalNode:         l0,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier { return ToDefaultLogicalNode(src) },
		},
		{
			name:   "ToDefaultLogicalNodeSession",
			target: TypeLogicalNodeSession,
			valid: map[Type]string{
				TypeInstanceNodeSession: ls0,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier { return ToDefaultLogicalNodeSession(src) },
		},
		{
			name:   "ExpandToLogicalNode",
			target: TypeLogicalNode,
			valid: map[Type]string{
				TypeInstanceNode: testInstance + ":worker2",
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier {
				id, err := ExpandToLogicalNode(src, "worker2")
				require.NoError(t, err)
				return id
			},
		},
		{
			name:   "ExpandToLogicalNodeSession",
			target: TypeLogicalNodeSession,
			valid: map[Type]string{
				TypeInstanceNodeSession: testInstance + ":worker2:" + testSession,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier {
				id, err := ExpandToLogicalNodeSession(src, "worker2")
				require.NoError(t, err)
				return id
			},
		},
		{
			name:   "CombineWithInstanceNodeSession",
			target: TypeLogicalNodeSession,
			valid: map[Type]string{
				TypeLogicalNode: testInstance + ":workerA:" + testSession,
			},
			run: func(t *testing.T, src NodeIdentifier) NodeIdentifier {
				return CombineWithInstanceNodeSession(src, f.session)
			},
		},
	}

	for _, op := range ops {
		for _, srcType := range Types {
			src := f.byType[srcType]
			t.Run(op.name+"/"+srcType.String(), func(t *testing.T) {
				want, ok := op.valid[srcType]
				if !ok {
					requirePanicsWith(t, ErrInvalidConversion, func() { op.run(t, src) })
					return
				}

				got := op.run(t, src)
				assert.Equal(t, op.target, got.Type())
				assert.Equal(t, want, got.String())
				assert.Equal(t, src.InstancePart(), got.InstancePart())
			})
		}
	}
}

func TestConversionOfNilIdentifier(t *testing.T) {
	requirePanicsWith(t, ErrInvalidConversion, func() { ToLogicalNode(nil) })
	requirePanicsWith(t, ErrInvalidConversion, func() { ToDefaultLogicalNode(nil) })
}

func TestNoOpConversionsReturnSameValue(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, f.instance, f.instance.ToInstanceNode())

	def := f.instance.ToDefaultLogicalNode()
	assert.Equal(t, def, def.ToDefaultLogicalNode())
}

func TestConversionsCarryParts(t *testing.T) {
	f := newFixture(t)

	toSession := f.logicalSession.ToInstanceNodeSession()
	assert.Equal(t, f.session.String(), toSession.String())
	assert.Equal(t, testSession, toSession.SessionPart())

	toLogical := f.logicalSession.ToLogicalNode()
	assert.Equal(t, "workerA", toLogical.LogicalPart())

	expanded, err := f.session.ExpandToLogicalNodeSession("r_exec")
	require.NoError(t, err)
	assert.Equal(t, testSession, expanded.SessionPart())
	assert.Equal(t, "r_exec", expanded.LogicalPart())

	defSession := f.session.ToDefaultLogicalNodeSession()
	assert.True(t, defSession.IsDefaultLogicalNode())
	assert.Equal(t, testSession, defSession.SessionPart())
}

func TestExpandRejectsInvalidLogicalPart(t *testing.T) {
	f := newFixture(t)

	_, err := f.instance.ExpandToLogicalNode("bad:part")
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	_, err = f.session.ExpandToLogicalNodeSession("")
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}

func TestCombineWithInstanceNodeSession(t *testing.T) {
	f := newFixture(t)

	t.Run("same instance", func(t *testing.T) {
		combined := f.logical.CombineWithInstanceNodeSession(f.session)
		assert.Equal(t, f.logical.InstancePart(), combined.InstancePart())
		assert.Equal(t, f.logical.LogicalPart(), combined.LogicalPart())
		assert.Equal(t, f.session.SessionPart(), combined.SessionPart())
		assert.True(t, combined.Equal(f.logicalSession))
	})

	t.Run("different instance", func(t *testing.T) {
		requirePanicsWith(t, ErrInternalConsistency, func() {
			f.logical.CombineWithInstanceNodeSession(f.otherSession)
		})
	})

	t.Run("zero session", func(t *testing.T) {
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() {
			f.logical.CombineWithInstanceNodeSession(InstanceNodeSessionID{})
		})
	})
}

func TestDynamicAccessors(t *testing.T) {
	f := newFixture(t)

	t.Run("session part", func(t *testing.T) {
		assert.Equal(t, testSession, SessionPart(f.session))
		assert.Equal(t, testSession, SessionPart(f.logicalSession))
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { SessionPart(f.instance) })
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { SessionPart(f.logical) })

		_, ok := LookupSessionPart(f.logical)
		assert.False(t, ok)
		s, ok := LookupSessionPart(f.logicalSession)
		assert.True(t, ok)
		assert.Equal(t, testSession, s)
	})

	t.Run("logical part", func(t *testing.T) {
		assert.Equal(t, "workerA", LogicalPart(f.logical))
		assert.Equal(t, "workerA", LogicalPart(f.logicalSession))
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { LogicalPart(f.session) })

		_, ok := LookupLogicalPart(f.instance)
		assert.False(t, ok)
	})

	t.Run("derived strings", func(t *testing.T) {
		assert.Equal(t, f.session.String(), InstanceSessionString(f.logicalSession))
		assert.Equal(t, f.logical.String(), LogicalNodeString(f.logicalSession))
		assert.Equal(t, f.logicalSession.String(), LogicalNodeSessionString(f.logicalSession))

		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { InstanceSessionString(f.logical) })
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { LogicalNodeString(f.session) })
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { LogicalNodeSessionString(f.logical) })
	})
}

func TestTransientAndDefaultLogicalNodes(t *testing.T) {
	f := newFixture(t)

	transient := f.svc.GenerateTransientLogicalNode(f.instance)
	assert.True(t, transient.IsTransientLogicalNode())
	assert.True(t, IsTransientLogicalNode(transient))
	assert.Len(t, transient.LogicalPart(), MaximumLogicalNodePartLength)

	def := f.instance.ToDefaultLogicalNode()
	assert.True(t, def.IsDefaultLogicalNode())
	assert.False(t, def.IsTransientLogicalNode())
	assert.False(t, f.logical.IsTransientLogicalNode())

	requirePanicsWith(t, ErrInvalidTypeForOperation, func() { IsTransientLogicalNode(f.instance) })
}

func TestLogicalNodeRecognitionPart(t *testing.T) {
	f := newFixture(t)

	t.Run("default logical node", func(t *testing.T) {
		_, ok := f.instance.ToDefaultLogicalNode().LogicalNodeRecognitionPart()
		assert.False(t, ok)
	})

	t.Run("transient logical node", func(t *testing.T) {
		_, ok := f.svc.GenerateTransientLogicalNode(f.instance).LogicalNodeRecognitionPart()
		assert.False(t, ok)
	})

	t.Run("recognizable logical node", func(t *testing.T) {
		id, err := f.svc.RecognizableLogicalNode(f.instance, "exec")
		require.NoError(t, err)
		assert.Equal(t, "r_exec", id.LogicalPart())

		part, ok := id.LogicalNodeRecognitionPart()
		assert.True(t, ok)
		assert.Equal(t, "exec", part)

		session := id.CombineWithInstanceNodeSession(f.session)
		part, ok = session.LogicalNodeRecognitionPart()
		assert.True(t, ok)
		assert.Equal(t, "exec", part)

		part, ok = LogicalNodeRecognitionPart(session)
		assert.True(t, ok)
		assert.Equal(t, "exec", part)
	})

	t.Run("unprefixed logical node", func(t *testing.T) {
		requirePanicsWith(t, ErrInternalConsistency, func() { f.logical.LogicalNodeRecognitionPart() })
	})

	t.Run("non-logical identifier", func(t *testing.T) {
		requirePanicsWith(t, ErrInvalidTypeForOperation, func() { LogicalNodeRecognitionPart(f.session) })
	})

	t.Run("empty recognition part", func(t *testing.T) {
		_, err := f.svc.RecognizableLogicalNode(f.instance, "")
		assert.True(t, IsMalformed(err))
	})
}

func TestSameInstancePredicates(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.logicalSession.IsSameInstanceNodeAs(f.instance))
	assert.True(t, f.instance.IsSameInstanceNodeAs(f.logical))
	assert.False(t, f.instance.IsSameInstanceNodeAs(f.otherSession))
	requirePanicsWith(t, ErrInvalidTypeForOperation, func() { f.instance.IsSameInstanceNodeAs(nil) })
	requirePanicsWith(t, ErrInvalidTypeForOperation, func() { f.instance.IsSameInstanceNodeAs(LogicalNodeID{}) })

	assert.True(t, f.logicalSession.IsSameInstanceNodeSessionAs(f.session))
	assert.True(t, f.session.IsSameInstanceNodeSessionAs(f.session))
	assert.False(t, f.session.IsSameInstanceNodeSessionAs(f.otherSession))

	later := f.svc.GenerateInstanceNodeSession(f.instance)
	assert.True(t, later.IsSameInstanceNodeAs(f.session))
	assert.False(t, later.IsSameInstanceNodeSessionAs(f.session))
	requirePanicsWith(t, ErrInvalidTypeForOperation, func() {
		f.session.IsSameInstanceNodeSessionAs(InstanceNodeSessionID{})
	})
}

func TestEquality(t *testing.T) {
	f := newFixture(t)

	other := newTestService(t)
	again, err := other.ParseLogicalNode(f.logical.String())
	require.NoError(t, err)

	assert.True(t, f.logical.Equal(again))
	assert.True(t, again.Equal(f.logical))
	assert.False(t, f.logical.Equal(f.logicalSession))
	assert.False(t, f.logical.Equal(nil))

	keys := map[string]NodeIdentifier{}
	keys[f.logical.String()] = f.logical
	keys[again.String()] = again
	assert.Len(t, keys, 1)
}

func TestMarshalText(t *testing.T) {
	f := newFixture(t)

	text, err := f.logicalSession.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, f.logicalSession.String(), string(text))

	_, err = LogicalNodeSessionID{}.MarshalText()
	assert.Error(t, err)
	assert.True(t, LogicalNodeSessionID{}.IsZero())
}

func TestDisplayNameWithoutRegistry(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, UnresolvedDisplayName, f.session.DisplayName())
	assert.Equal(t, UnresolvedDisplayName, InstanceNodeID{}.DisplayName())
}
