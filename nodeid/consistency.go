package nodeid

// checkConsistency panics with a KindInternal *Error when b violates the
// invariants of its type. It runs on every construction path.
func checkConsistency(op string, b idBase) {
	t := b.typ
	if !t.Valid() {
		panic(inconsistent(op, t, b.canonical, "unknown identifier type"))
	}

	if len(b.instancePart) != InstancePartLength {
		panic(inconsistent(op, t, b.canonical, "instance part has length %d, expected %d",
			len(b.instancePart), InstancePartLength))
	}

	if t.HasSessionPart() {
		if len(b.sessionPart) != SessionPartLength {
			panic(inconsistent(op, t, b.canonical, "session part has length %d, expected %d",
				len(b.sessionPart), SessionPartLength))
		}
	} else if b.sessionPart != "" {
		panic(inconsistent(op, t, b.canonical, "unexpected session part %q", b.sessionPart))
	}

	if t.HasLogicalPart() {
		if n := len(b.logicalPart); n < 1 || n > MaximumLogicalNodePartLength {
			panic(inconsistent(op, t, b.canonical, "logical part has length %d, expected 1..%d",
				n, MaximumLogicalNodePartLength))
		}
	} else if b.logicalPart != "" {
		panic(inconsistent(op, t, b.canonical, "unexpected logical part %q", b.logicalPart))
	}

	minLen, maxLen := canonicalLengthBounds(t)
	if n := len(b.canonical); n < minLen || n > maxLen {
		panic(inconsistent(op, t, b.canonical, "canonical string has length %d, expected %d..%d",
			n, minLen, maxLen))
	}

	if _, ok := decode(b.canonical, t); !ok {
		panic(inconsistent(op, t, b.canonical, "canonical string does not match grammar"))
	}
}
