package nodeid

import (
	"fmt"
	"strings"
)

// Type is the closed set of node identifier kinds.
type Type int

const (
	// TypeInstanceNode identifies an instance for its whole lifetime.
	TypeInstanceNode Type = iota + 1

	// TypeInstanceNodeSession identifies one activation of an instance.
	TypeInstanceNodeSession

	// TypeLogicalNode identifies a logical node within an instance.
	TypeLogicalNode

	// TypeLogicalNodeSession identifies a logical node within one activation.
	TypeLogicalNodeSession
)

// Types lists every identifier type in declaration order.
var Types = []Type{
	TypeInstanceNode,
	TypeInstanceNodeSession,
	TypeLogicalNode,
	TypeLogicalNodeSession,
}

func (t Type) String() string {
	switch t {
	case TypeInstanceNode:
		return "instance_node"
	case TypeInstanceNodeSession:
		return "instance_node_session"
	case TypeLogicalNode:
		return "logical_node"
	case TypeLogicalNodeSession:
		return "logical_node_session"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Valid reports whether t is one of the four identifier types.
func (t Type) Valid() bool {
	return t >= TypeInstanceNode && t <= TypeLogicalNodeSession
}

// HasSessionPart reports whether identifiers of this type carry a session part.
func (t Type) HasSessionPart() bool {
	return t == TypeInstanceNodeSession || t == TypeLogicalNodeSession
}

// HasLogicalPart reports whether identifiers of this type carry a logical part.
func (t Type) HasLogicalPart() bool {
	return t == TypeLogicalNode || t == TypeLogicalNodeSession
}

// ParseType maps a type name (as produced by String) to a Type.
// Matching is case-insensitive and also accepts hyphens.
func ParseType(s string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, t := range Types {
		if t.String() == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown node identifier type %q", s)
}
