// Package idgen produces the raw hex tokens that node identifiers are built from.
//
// Two kinds of tokens exist:
//
//   - Random tokens: fixed-length lowercase hex drawn from either crypto/rand
//     (secure) or a faster non-cryptographic source. Instance parts use these.
//   - Timestamp tokens: fixed-length lowercase hex derived from the current
//     time in seconds, shifted left by one byte and offset by a process-wide
//     sequence. Session parts use these.
//
// # Ordering
//
// The sequence is shared by every Generator in the process. Because the
// scaled timestamp never decreases and the sequence strictly increases,
// timestamp tokens of equal length are strictly increasing in lexical order
// for the lifetime of the process, even when the clock does not advance:
//
//	gen := idgen.New(idgen.WithClock(fixed))
//	a := gen.TimestampHex(10)
//	b := gen.TimestampHex(10)
//	// a < b
//
// Tokens are addressing labels, not credentials.
package idgen
