package nodeid

import (
	"fmt"
	"regexp"
)

// Grammar constants for the canonical string form.
const (
	// InstancePartLength is the exact length of an instance part.
	InstancePartLength = 32

	// SessionPartLength is the exact length of a session part.
	SessionPartLength = 10

	// MaximumLogicalNodePartLength bounds a logical part, prefixes included.
	MaximumLogicalNodePartLength = 32

	// Separator joins the parts of a canonical string.
	Separator = ":"

	// DefaultLogicalNodePart marks an instance's default logical node.
	DefaultLogicalNodePart = "0"

	// TransientLogicalNodePrefix marks logical nodes that are not recognized
	// across runs.
	TransientLogicalNodePrefix = "t_"

	// RecognizableLogicalNodePrefix marks logical nodes whose remainder is a
	// stable recognition part.
	RecognizableLogicalNodePrefix = "r_"
)

var (
	instancePartPattern = fmt.Sprintf(`[0-9a-f]{%d}`, InstancePartLength)
	sessionPartPattern  = fmt.Sprintf(`[0-9a-f]{%d}`, SessionPartLength)
	logicalPartPattern  = fmt.Sprintf(`[0-9a-zA-Z_]{1,%d}`, MaximumLogicalNodePartLength)
	sep                 = regexp.QuoteMeta(Separator)

	instanceNodePattern = regexp.MustCompile(
		fmt.Sprintf(`^(%s)$`, instancePartPattern))
	instanceNodeSessionPattern = regexp.MustCompile(
		fmt.Sprintf(`^(%s)%s%s(%s)$`, instancePartPattern, sep, sep, sessionPartPattern))
	logicalNodePattern = regexp.MustCompile(
		fmt.Sprintf(`^(%s)%s(%s)$`, instancePartPattern, sep, logicalPartPattern))
	logicalNodeSessionPattern = regexp.MustCompile(
		fmt.Sprintf(`^(%s)%s(%s)%s(%s)$`, instancePartPattern, sep, logicalPartPattern, sep, sessionPartPattern))
	logicalPartOnlyPattern = regexp.MustCompile(
		fmt.Sprintf(`^%s$`, logicalPartPattern))
)

// parts holds the structured pieces of an identifier. Absent parts are empty.
type parts struct {
	instance string
	session  string
	logical  string
}

// encode joins p into the canonical string for t.
func encode(p parts, t Type) string {
	switch t {
	case TypeInstanceNode:
		return p.instance
	case TypeInstanceNodeSession:
		return p.instance + Separator + Separator + p.session
	case TypeLogicalNode:
		return p.instance + Separator + p.logical
	case TypeLogicalNodeSession:
		return p.instance + Separator + p.logical + Separator + p.session
	default:
		panic(invalidType("encode", t))
	}
}

// decode matches input against the full grammar for t. There is no lenient
// mode: either the whole string matches or decoding fails.
func decode(input string, t Type) (parts, bool) {
	switch t {
	case TypeInstanceNode:
		m := instanceNodePattern.FindStringSubmatch(input)
		if m == nil {
			return parts{}, false
		}
		return parts{instance: m[1]}, true
	case TypeInstanceNodeSession:
		m := instanceNodeSessionPattern.FindStringSubmatch(input)
		if m == nil {
			return parts{}, false
		}
		return parts{instance: m[1], session: m[2]}, true
	case TypeLogicalNode:
		m := logicalNodePattern.FindStringSubmatch(input)
		if m == nil {
			return parts{}, false
		}
		return parts{instance: m[1], logical: m[2]}, true
	case TypeLogicalNodeSession:
		m := logicalNodeSessionPattern.FindStringSubmatch(input)
		if m == nil {
			return parts{}, false
		}
		return parts{instance: m[1], logical: m[2], session: m[3]}, true
	default:
		return parts{}, false
	}
}

// ValidLogicalPart reports whether part is acceptable as a logical part.
func ValidLogicalPart(part string) bool {
	return logicalPartOnlyPattern.MatchString(part)
}

// canonicalLengthBounds returns the inclusive length range of a canonical
// string of type t.
func canonicalLengthBounds(t Type) (int, int) {
	sepLen := len(Separator)
	switch t {
	case TypeInstanceNode:
		return InstancePartLength, InstancePartLength
	case TypeInstanceNodeSession:
		n := InstancePartLength + 2*sepLen + SessionPartLength
		return n, n
	case TypeLogicalNode:
		base := InstancePartLength + sepLen
		return base + 1, base + MaximumLogicalNodePartLength
	case TypeLogicalNodeSession:
		base := InstancePartLength + 2*sepLen + SessionPartLength
		return base + 1, base + MaximumLogicalNodePartLength
	default:
		return 0, -1
	}
}
