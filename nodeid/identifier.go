package nodeid

import (
	"fmt"
	"strings"
)

// UnresolvedDisplayName is shown for identifiers without a known display name.
const UnresolvedDisplayName = "<unknown>"

// NameResolver produces display names for identifiers. An identifier keeps a
// non-owning reference to the resolver of the service that built it; the
// resolver never takes part in identity, equality or hashing.
type NameResolver interface {
	ResolveDisplayName(id NodeIdentifier) string
}

// NodeIdentifier is implemented by exactly four types: InstanceNodeID,
// InstanceNodeSessionID, LogicalNodeID and LogicalNodeSessionID. Values are
// immutable and safe to share between goroutines.
//
// Two identifiers are equal iff their canonical strings are equal. Use
// Equal, or String() as a map key; the == operator also compares the
// resolver reference.
type NodeIdentifier interface {
	// Type returns the identifier type.
	Type() Type

	// InstancePart returns the instance part, present for every type.
	InstancePart() string

	// String returns the canonical string.
	String() string

	// DisplayName returns the associated display name, or
	// UnresolvedDisplayName.
	DisplayName() string

	// ToInstanceNode projects the identifier onto its instance.
	ToInstanceNode() InstanceNodeID

	// IsSameInstanceNodeAs reports whether both identifiers share the
	// instance part. It panics on a nil or zero argument.
	IsSameInstanceNodeAs(other NodeIdentifier) bool

	// Equal compares canonical strings.
	Equal(other NodeIdentifier) bool

	// IsZero reports whether the value was never constructed.
	IsZero() bool

	// MarshalText returns the canonical string.
	MarshalText() ([]byte, error)

	base() idBase
}

// idBase carries the state shared by all identifier types. It is only ever
// built by newBase, which runs the consistency check.
type idBase struct {
	typ          Type
	instancePart string
	sessionPart  string
	logicalPart  string
	canonical    string
	resolver     NameResolver
}

func newBase(op string, t Type, p parts, resolver NameResolver) idBase {
	b := idBase{
		typ:          t,
		instancePart: p.instance,
		sessionPart:  p.session,
		logicalPart:  p.logical,
		resolver:     resolver,
	}
	if t.Valid() {
		b.canonical = encode(p, t)
	}
	checkConsistency(op, b)
	return b
}

func (b idBase) base() idBase { return b }

func (b idBase) Type() Type { return b.typ }

func (b idBase) InstancePart() string { return b.instancePart }

func (b idBase) String() string { return b.canonical }

func (b idBase) IsZero() bool { return b.canonical == "" }

func (b idBase) MarshalText() ([]byte, error) {
	if b.IsZero() {
		return nil, fmt.Errorf("nodeid: cannot marshal zero identifier")
	}
	return []byte(b.canonical), nil
}

func (b idBase) DisplayName() string {
	if b.resolver == nil || b.IsZero() {
		return UnresolvedDisplayName
	}
	return b.resolver.ResolveDisplayName(b.identifier())
}

func (b idBase) Equal(other NodeIdentifier) bool {
	if other == nil {
		return false
	}
	return b.canonical == other.String()
}

func (b idBase) ToInstanceNode() InstanceNodeID {
	if b.typ == TypeInstanceNode {
		return InstanceNodeID{b}
	}
	return InstanceNodeID{newBase("ToInstanceNode", TypeInstanceNode, parts{instance: b.instancePart}, b.resolver)}
}

func (b idBase) IsSameInstanceNodeAs(other NodeIdentifier) bool {
	if other == nil || other.IsZero() {
		panic(&Error{
			Op:   "IsSameInstanceNodeAs",
			Kind: KindInvalidType,
			Type: b.typ,
			Err:  fmt.Errorf("%w: nil identifier", ErrInvalidTypeForOperation),
		})
	}
	return b.instancePart == other.InstancePart()
}

// identifier rewraps b in its concrete type.
func (b idBase) identifier() NodeIdentifier {
	switch b.typ {
	case TypeInstanceNode:
		return InstanceNodeID{b}
	case TypeInstanceNodeSession:
		return InstanceNodeSessionID{b}
	case TypeLogicalNode:
		return LogicalNodeID{b}
	case TypeLogicalNodeSession:
		return LogicalNodeSessionID{b}
	default:
		panic(invalidType("identifier", b.typ))
	}
}

func (b idBase) instanceSessionString() string {
	return b.instancePart + Separator + Separator + b.sessionPart
}

func (b idBase) logicalNodeString() string {
	return b.instancePart + Separator + b.logicalPart
}

func (b idBase) isTransientLogicalNode() bool {
	return strings.HasPrefix(b.logicalPart, TransientLogicalNodePrefix)
}

func (b idBase) isDefaultLogicalNode() bool {
	return b.logicalPart == DefaultLogicalNodePart
}

func (b idBase) logicalNodeRecognitionPart(op string) (string, bool) {
	if b.isDefaultLogicalNode() || b.isTransientLogicalNode() {
		return "", false
	}
	rest, ok := strings.CutPrefix(b.logicalPart, RecognizableLogicalNodePrefix)
	if !ok {
		panic(inconsistent(op, b.typ, b.canonical, "logical part %q has no recognition prefix", b.logicalPart))
	}
	return rest, true
}

// InstanceNodeID identifies an instance for its whole lifetime.
type InstanceNodeID struct{ idBase }

// ToDefaultLogicalNode returns the default logical node of this instance.
func (id InstanceNodeID) ToDefaultLogicalNode() LogicalNodeID {
	return newLogicalNodeID("InstanceNodeID.ToDefaultLogicalNode", id.instancePart, DefaultLogicalNodePart, id.resolver)
}

// ExpandToLogicalNode returns the logical node with the given logical part.
func (id InstanceNodeID) ExpandToLogicalNode(logicalPart string) (LogicalNodeID, error) {
	const op = "InstanceNodeID.ExpandToLogicalNode"
	if !ValidLogicalPart(logicalPart) {
		return LogicalNodeID{}, malformed(op, TypeLogicalNode, logicalPart)
	}
	return newLogicalNodeID(op, id.instancePart, logicalPart, id.resolver), nil
}

// InstanceNodeSessionID identifies one activation of an instance.
type InstanceNodeSessionID struct{ idBase }

// SessionPart returns the session part.
func (id InstanceNodeSessionID) SessionPart() string { return id.sessionPart }

// InstanceSessionString returns the canonical instance-session string.
func (id InstanceNodeSessionID) InstanceSessionString() string { return id.canonical }

// ToDefaultLogicalNode returns the default logical node of the instance,
// dropping the session.
func (id InstanceNodeSessionID) ToDefaultLogicalNode() LogicalNodeID {
	return newLogicalNodeID("InstanceNodeSessionID.ToDefaultLogicalNode", id.instancePart, DefaultLogicalNodePart, id.resolver)
}

// ToDefaultLogicalNodeSession returns the default logical node within this
// session.
func (id InstanceNodeSessionID) ToDefaultLogicalNodeSession() LogicalNodeSessionID {
	return newLogicalNodeSessionID("InstanceNodeSessionID.ToDefaultLogicalNodeSession",
		id.instancePart, DefaultLogicalNodePart, id.sessionPart, id.resolver)
}

// ExpandToLogicalNodeSession returns the logical node session with the given
// logical part and this session part.
func (id InstanceNodeSessionID) ExpandToLogicalNodeSession(logicalPart string) (LogicalNodeSessionID, error) {
	const op = "InstanceNodeSessionID.ExpandToLogicalNodeSession"
	if !ValidLogicalPart(logicalPart) {
		return LogicalNodeSessionID{}, malformed(op, TypeLogicalNodeSession, logicalPart)
	}
	return newLogicalNodeSessionID(op, id.instancePart, logicalPart, id.sessionPart, id.resolver), nil
}

// IsSameInstanceNodeSessionAs reports whether both instance and session parts
// match.
func (id InstanceNodeSessionID) IsSameInstanceNodeSessionAs(other InstanceNodeSessionID) bool {
	return sameInstanceNodeSession("InstanceNodeSessionID.IsSameInstanceNodeSessionAs", id.idBase, other)
}

// LogicalNodeID identifies a logical node within an instance.
type LogicalNodeID struct{ idBase }

// LogicalPart returns the logical part.
func (id LogicalNodeID) LogicalPart() string { return id.logicalPart }

// LogicalNodeString returns the canonical logical node string.
func (id LogicalNodeID) LogicalNodeString() string { return id.canonical }

// ToDefaultLogicalNode returns the default logical node of the same instance.
func (id LogicalNodeID) ToDefaultLogicalNode() LogicalNodeID {
	if id.isDefaultLogicalNode() {
		return id
	}
	return newLogicalNodeID("LogicalNodeID.ToDefaultLogicalNode", id.instancePart, DefaultLogicalNodePart, id.resolver)
}

// CombineWithInstanceNodeSession attaches the session part of session.
// Both identifiers must belong to the same instance; combining identifiers of
// different instances panics with a KindInternal *Error.
func (id LogicalNodeID) CombineWithInstanceNodeSession(session InstanceNodeSessionID) LogicalNodeSessionID {
	const op = "LogicalNodeID.CombineWithInstanceNodeSession"
	if session.IsZero() {
		panic(invalidType(op, 0))
	}
	if session.instancePart != id.instancePart {
		panic(inconsistent(op, TypeLogicalNodeSession, session.canonical,
			"instance part %s does not match %s", session.instancePart, id.instancePart))
	}
	return newLogicalNodeSessionID(op, id.instancePart, id.logicalPart, session.sessionPart, id.resolver)
}

// IsTransientLogicalNode reports whether the logical part carries the
// transient prefix.
func (id LogicalNodeID) IsTransientLogicalNode() bool { return id.isTransientLogicalNode() }

// IsDefaultLogicalNode reports whether this is the instance's default logical
// node.
func (id LogicalNodeID) IsDefaultLogicalNode() bool { return id.isDefaultLogicalNode() }

// LogicalNodeRecognitionPart returns the logical part without the
// recognizable prefix. It returns false for default and transient logical
// nodes and panics if any other logical part lacks the prefix.
func (id LogicalNodeID) LogicalNodeRecognitionPart() (string, bool) {
	return id.logicalNodeRecognitionPart("LogicalNodeID.LogicalNodeRecognitionPart")
}

// LogicalNodeSessionID identifies a logical node within one activation.
type LogicalNodeSessionID struct{ idBase }

// SessionPart returns the session part.
func (id LogicalNodeSessionID) SessionPart() string { return id.sessionPart }

// LogicalPart returns the logical part.
func (id LogicalNodeSessionID) LogicalPart() string { return id.logicalPart }

// InstanceSessionString returns the instance-session string this identifier
// belongs to.
func (id LogicalNodeSessionID) InstanceSessionString() string { return id.instanceSessionString() }

// LogicalNodeString returns the logical node string without the session.
func (id LogicalNodeSessionID) LogicalNodeString() string { return id.logicalNodeString() }

// LogicalNodeSessionString returns the canonical string.
func (id LogicalNodeSessionID) LogicalNodeSessionString() string { return id.canonical }

// ToInstanceNodeSession drops the logical part.
func (id LogicalNodeSessionID) ToInstanceNodeSession() InstanceNodeSessionID {
	return newInstanceNodeSessionID("LogicalNodeSessionID.ToInstanceNodeSession",
		id.instancePart, id.sessionPart, id.resolver)
}

// ToLogicalNode drops the session part.
func (id LogicalNodeSessionID) ToLogicalNode() LogicalNodeID {
	return newLogicalNodeID("LogicalNodeSessionID.ToLogicalNode", id.instancePart, id.logicalPart, id.resolver)
}

// IsSameInstanceNodeSessionAs reports whether both instance and session parts
// match.
func (id LogicalNodeSessionID) IsSameInstanceNodeSessionAs(other InstanceNodeSessionID) bool {
	return sameInstanceNodeSession("LogicalNodeSessionID.IsSameInstanceNodeSessionAs", id.idBase, other)
}

// IsTransientLogicalNode reports whether the logical part carries the
// transient prefix.
func (id LogicalNodeSessionID) IsTransientLogicalNode() bool { return id.isTransientLogicalNode() }

// IsDefaultLogicalNode reports whether the logical part is the default marker.
func (id LogicalNodeSessionID) IsDefaultLogicalNode() bool { return id.isDefaultLogicalNode() }

// LogicalNodeRecognitionPart behaves like LogicalNodeID.LogicalNodeRecognitionPart.
func (id LogicalNodeSessionID) LogicalNodeRecognitionPart() (string, bool) {
	return id.logicalNodeRecognitionPart("LogicalNodeSessionID.LogicalNodeRecognitionPart")
}

func sameInstanceNodeSession(op string, b idBase, other InstanceNodeSessionID) bool {
	if other.IsZero() {
		panic(&Error{
			Op:   op,
			Kind: KindInvalidType,
			Type: b.typ,
			Err:  fmt.Errorf("%w: zero instance session", ErrInvalidTypeForOperation),
		})
	}
	return b.instancePart == other.instancePart && b.sessionPart == other.sessionPart
}

func newInstanceNodeID(op, instance string, r NameResolver) InstanceNodeID {
	return InstanceNodeID{newBase(op, TypeInstanceNode, parts{instance: instance}, r)}
}

func newInstanceNodeSessionID(op, instance, session string, r NameResolver) InstanceNodeSessionID {
	return InstanceNodeSessionID{newBase(op, TypeInstanceNodeSession, parts{instance: instance, session: session}, r)}
}

func newLogicalNodeID(op, instance, logical string, r NameResolver) LogicalNodeID {
	return LogicalNodeID{newBase(op, TypeLogicalNode, parts{instance: instance, logical: logical}, r)}
}

func newLogicalNodeSessionID(op, instance, logical, session string, r NameResolver) LogicalNodeSessionID {
	return LogicalNodeSessionID{newBase(op, TypeLogicalNodeSession,
		parts{instance: instance, logical: logical, session: session}, r)}
}
