package nodeid

// The functions in this file operate on the NodeIdentifier interface for
// callers that do not know the concrete type. Edges that do not exist for
// the source type panic with a KindInvalidConversion *Error, and accessors
// for absent parts panic with a KindInvalidType *Error.
//
//	source                 | ToInstanceNodeSession | ToLogicalNode | ToDefaultLogicalNode | ToDefaultLogicalNodeSession
//	InstanceNode           | -                     | -             | yes                  | -
//	InstanceNodeSession    | -                     | -             | yes                  | yes
//	LogicalNode            | -                     | -             | yes                  | -
//	LogicalNodeSession     | yes                   | yes           | -                    | -

func typeOf(id NodeIdentifier) Type {
	if id == nil {
		return 0
	}
	return id.Type()
}

// ToInstanceNodeSession drops the logical part of a logical node session.
func ToInstanceNodeSession(id NodeIdentifier) InstanceNodeSessionID {
	if v, ok := id.(LogicalNodeSessionID); ok {
		return v.ToInstanceNodeSession()
	}
	panic(invalidConversion("ToInstanceNodeSession", typeOf(id)))
}

// ToLogicalNode drops the session part of a logical node session.
func ToLogicalNode(id NodeIdentifier) LogicalNodeID {
	if v, ok := id.(LogicalNodeSessionID); ok {
		return v.ToLogicalNode()
	}
	panic(invalidConversion("ToLogicalNode", typeOf(id)))
}

// ToDefaultLogicalNode returns the default logical node of the identifier's
// instance. A logical node session is rejected because the session identity
// would be silently discarded.
func ToDefaultLogicalNode(id NodeIdentifier) LogicalNodeID {
	switch v := id.(type) {
	case InstanceNodeID:
		return v.ToDefaultLogicalNode()
	case InstanceNodeSessionID:
		return v.ToDefaultLogicalNode()
	case LogicalNodeID:
		return v.ToDefaultLogicalNode()
	}
	panic(invalidConversion("ToDefaultLogicalNode", typeOf(id)))
}

// ToDefaultLogicalNodeSession returns the default logical node within an
// instance session.
func ToDefaultLogicalNodeSession(id NodeIdentifier) LogicalNodeSessionID {
	if v, ok := id.(InstanceNodeSessionID); ok {
		return v.ToDefaultLogicalNodeSession()
	}
	panic(invalidConversion("ToDefaultLogicalNodeSession", typeOf(id)))
}

// ExpandToLogicalNode expands an instance node with an explicit logical part.
// An invalid logical part is returned as a malformed-identifier error.
func ExpandToLogicalNode(id NodeIdentifier, logicalPart string) (LogicalNodeID, error) {
	if v, ok := id.(InstanceNodeID); ok {
		return v.ExpandToLogicalNode(logicalPart)
	}
	panic(invalidConversion("ExpandToLogicalNode", typeOf(id)))
}

// ExpandToLogicalNodeSession expands an instance session with an explicit
// logical part, carrying the session part over.
func ExpandToLogicalNodeSession(id NodeIdentifier, logicalPart string) (LogicalNodeSessionID, error) {
	if v, ok := id.(InstanceNodeSessionID); ok {
		return v.ExpandToLogicalNodeSession(logicalPart)
	}
	panic(invalidConversion("ExpandToLogicalNodeSession", typeOf(id)))
}

// CombineWithInstanceNodeSession attaches session's session part to a logical
// node of the same instance.
func CombineWithInstanceNodeSession(id NodeIdentifier, session InstanceNodeSessionID) LogicalNodeSessionID {
	if v, ok := id.(LogicalNodeID); ok {
		return v.CombineWithInstanceNodeSession(session)
	}
	panic(invalidConversion("CombineWithInstanceNodeSession", typeOf(id)))
}

// SessionPart returns the session part or panics if id has none.
func SessionPart(id NodeIdentifier) string {
	if s, ok := LookupSessionPart(id); ok {
		return s
	}
	panic(invalidType("SessionPart", typeOf(id)))
}

// LookupSessionPart returns the session part if id carries one.
func LookupSessionPart(id NodeIdentifier) (string, bool) {
	if id == nil || !id.Type().HasSessionPart() {
		return "", false
	}
	return id.base().sessionPart, true
}

// LogicalPart returns the logical part or panics if id has none.
func LogicalPart(id NodeIdentifier) string {
	if s, ok := LookupLogicalPart(id); ok {
		return s
	}
	panic(invalidType("LogicalPart", typeOf(id)))
}

// LookupLogicalPart returns the logical part if id carries one.
func LookupLogicalPart(id NodeIdentifier) (string, bool) {
	if id == nil || !id.Type().HasLogicalPart() {
		return "", false
	}
	return id.base().logicalPart, true
}

// InstanceSessionString returns the instance-session string of a
// session-bearing identifier.
func InstanceSessionString(id NodeIdentifier) string {
	if id == nil || !id.Type().HasSessionPart() {
		panic(invalidType("InstanceSessionString", typeOf(id)))
	}
	return id.base().instanceSessionString()
}

// LogicalNodeString returns the logical node string of a logical identifier.
func LogicalNodeString(id NodeIdentifier) string {
	if id == nil || !id.Type().HasLogicalPart() {
		panic(invalidType("LogicalNodeString", typeOf(id)))
	}
	return id.base().logicalNodeString()
}

// LogicalNodeSessionString returns the canonical string of a logical node
// session.
func LogicalNodeSessionString(id NodeIdentifier) string {
	if typeOf(id) != TypeLogicalNodeSession {
		panic(invalidType("LogicalNodeSessionString", typeOf(id)))
	}
	return id.String()
}

// IsTransientLogicalNode reports whether a logical identifier is transient.
func IsTransientLogicalNode(id NodeIdentifier) bool {
	if id == nil || !id.Type().HasLogicalPart() {
		panic(invalidType("IsTransientLogicalNode", typeOf(id)))
	}
	return id.base().isTransientLogicalNode()
}

// LogicalNodeRecognitionPart returns the recognition part of a logical
// identifier; see LogicalNodeID.LogicalNodeRecognitionPart.
func LogicalNodeRecognitionPart(id NodeIdentifier) (string, bool) {
	if id == nil || !id.Type().HasLogicalPart() {
		panic(invalidType("LogicalNodeRecognitionPart", typeOf(id)))
	}
	return id.base().logicalNodeRecognitionPart("LogicalNodeRecognitionPart")
}
