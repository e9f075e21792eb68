// Package nodeid assigns and manipulates the identities of participants in a
// distributed execution platform: instances, their sessions, and logical
// nodes inside an instance.
//
// # Identifier Types
//
// Four immutable value types implement the sealed NodeIdentifier interface:
//
//   - InstanceNodeID: one runtime instance for its whole lifetime
//   - InstanceNodeSessionID: one activation of an instance (restarts differ)
//   - LogicalNodeID: a named execution context inside an instance
//   - LogicalNodeSessionID: a logical node inside one activation
//
// # Canonical Strings
//
// Every identifier has exactly one canonical string, used for equality,
// hashing, storage and transport:
//
//	InstanceNode         <instance>
//	InstanceNodeSession  <instance>::<session>
//	LogicalNode          <instance>:<logical>
//	LogicalNodeSession   <instance>:<logical>:<session>
//
// The instance part is 32 lowercase hex characters and the session part 10.
// The logical part is 1..32 characters of [0-9a-zA-Z_]. The part "0" marks
// the default logical node, a "t_" prefix marks a transient logical node and
// an "r_" prefix a recognizable one.
//
// # Obtaining Identifiers
//
// Identifiers are only built by a Service, either by generation or by
// parsing. Both paths run the consistency check, so every identifier in the
// process satisfies its invariants:
//
//	svc, _ := nodeid.NewService()
//	instance := svc.GenerateInstanceNode()
//	session := svc.GenerateInstanceNodeSession(instance)
//	logical, err := svc.ParseLogicalNode("0a1b2c3d0a1b2c3d0a1b2c3d0a1b2c3d:workerA")
//
// Identifiers that were stored or sent over the wire come back through
// Service.Parse or Rehydrate, never by trusting the raw string.
//
// # Conversions
//
// Conversions exist as methods only on the types they are defined for, so
// most illegal conversions do not compile. The package-level functions
// (ToLogicalNode, ToDefaultLogicalNode, ...) accept any NodeIdentifier and
// panic with an *Error of kind KindInvalidConversion for edges that do not
// exist. Such a panic always points at a caller bug.
//
// # Display Names
//
// Display names live outside identity in a NameRegistry. Renaming never
// changes equality or hashing of an identifier.
package nodeid
