package nodeid

import (
	"errors"
	"fmt"
)

// Sentinel errors for identifier failures.
// These can be matched with errors.Is() against both returned and recovered errors.
var (
	// ErrMalformedIdentifier indicates an input string does not match the
	// grammar of the requested identifier type.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrInvalidConversion indicates a conversion edge that does not exist for
	// the source identifier type.
	ErrInvalidConversion = errors.New("invalid conversion")

	// ErrInvalidTypeForOperation indicates an accessor was called on an
	// identifier type that does not carry the requested part.
	ErrInvalidTypeForOperation = errors.New("invalid type for operation")

	// ErrInternalConsistency indicates a constructed identifier violates its
	// invariants. This is always a bug in this package or its caller.
	ErrInternalConsistency = errors.New("internal consistency failure")
)

// Error kinds categorize identifier errors.
const (
	// KindMalformed is returned to callers; the input was bad.
	KindMalformed = "malformed_identifier"

	// KindInvalidConversion is raised with panic.
	KindInvalidConversion = "invalid_conversion"

	// KindInvalidType is raised with panic.
	KindInvalidType = "invalid_type_for_operation"

	// KindInternal is raised with panic.
	KindInternal = "internal_consistency"
)

// Error is the structured error type for identifier operations.
//
// Malformed input is returned as an *Error. Programming errors (invalid
// conversions, accessors on the wrong type, broken invariants) are raised by
// panicking with an *Error, so a recover() site can still inspect them with
// errors.Is and errors.As.
type Error struct {
	// Op is the operation that failed (e.g. "Service.ParseLogicalNode").
	Op string

	// Kind categorizes the error (e.g. KindMalformed).
	Kind string

	// Type is the identifier type involved, if any.
	Type Type

	// Input is the offending string, if any.
	Input string

	// Err is the underlying sentinel or cause.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("nodeid: %s (%s)", e.Op, e.Kind)
	if e.Type != 0 {
		msg += fmt.Sprintf(" [%s]", e.Type)
	}
	if e.Input != "" {
		msg += fmt.Sprintf(" %q", e.Input)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Kind, or delegates to the wrapped error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*Error); ok {
		if t.Kind != "" && t.Kind == e.Kind {
			return t.Op == "" || t.Op == e.Op
		}
	}
	return errors.Is(e.Err, target)
}

func malformed(op string, t Type, input string) *Error {
	return &Error{Op: op, Kind: KindMalformed, Type: t, Input: input, Err: ErrMalformedIdentifier}
}

func invalidConversion(op string, from Type) *Error {
	return &Error{
		Op:   op,
		Kind: KindInvalidConversion,
		Type: from,
		Err:  fmt.Errorf("%w: not defined for %s", ErrInvalidConversion, from),
	}
}

func invalidType(op string, t Type) *Error {
	return &Error{
		Op:   op,
		Kind: KindInvalidType,
		Type: t,
		Err:  fmt.Errorf("%w: %s", ErrInvalidTypeForOperation, t),
	}
}

func inconsistent(op string, t Type, input string, format string, args ...any) *Error {
	return &Error{
		Op:    op,
		Kind:  KindInternal,
		Type:  t,
		Input: input,
		Err:   fmt.Errorf("%w: %s", ErrInternalConsistency, fmt.Sprintf(format, args...)),
	}
}

// IsMalformed reports whether err is a malformed-identifier error.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedIdentifier)
}
