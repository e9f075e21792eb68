package idgen

import (
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

const (
	// TimestampDivisor scales the millisecond clock down to seconds before a
	// timestamp token is formed.
	TimestampDivisor = 1000

	// MinTimestampLength is the shortest timestamp token: one digit of time
	// plus the one-byte sequence headroom.
	MinTimestampLength = 3

	// MaxTimestampLength is the longest timestamp token that fits a uint64
	// with room to spare.
	MaxTimestampLength = 15

	headroomDigits = 2
	headroomBits   = 8
)

// sequence disambiguates timestamp tokens issued within the same clock tick.
// It is shared by all generators in the process.
var sequence atomic.Uint64

// Clock provides the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// RealClock uses time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock used for timestamp tokens.
func WithClock(clock Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithSecureRandom selects crypto/rand (true, the default) or a faster
// non-cryptographic source (false) for random tokens.
func WithSecureRandom(secure bool) Option {
	return func(g *Generator) {
		g.secure = secure
	}
}

// WithRandomReader replaces the secure entropy source.
func WithRandomReader(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.reader = r
		}
	}
}

// Generator produces random and timestamp-derived hex tokens.
// It is safe for concurrent use.
type Generator struct {
	clock  Clock
	secure bool
	reader io.Reader
}

// New creates a Generator. Without options it uses the real clock and
// crypto/rand.
func New(opts ...Option) *Generator {
	g := &Generator{
		clock:  RealClock{},
		secure: true,
		reader: cryptorand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Secure reports whether random tokens come from the secure source.
func (g *Generator) Secure() bool {
	return g.secure
}

// RandomHex returns length lowercase hex characters.
//
// It panics if length is not positive or if the secure source fails; both
// indicate a broken process rather than bad input.
func (g *Generator) RandomHex(length int) string {
	if length <= 0 {
		panic(fmt.Sprintf("idgen: invalid random token length %d", length))
	}

	buf := make([]byte, (length+1)/2)
	if g.secure {
		if _, err := io.ReadFull(g.reader, buf); err != nil {
			panic(fmt.Errorf("idgen: failed to read random bytes: %w", err))
		}
	} else {
		for i := 0; i < len(buf); i += 8 {
			v := rand.Uint64()
			for j := 0; j < 8 && i+j < len(buf); j++ {
				buf[i+j] = byte(v >> (8 * j))
			}
		}
	}

	return hex.EncodeToString(buf)[:length]
}

// TimestampHex returns a totalLength hex token derived from the clock.
//
// The token is ((millis / TimestampDivisor) << 8) + next sequence value,
// zero-padded on the left. The scaled time must fit in totalLength-2 digits
// and the sum in totalLength digits; otherwise the call panics.
func (g *Generator) TimestampHex(totalLength int) string {
	if totalLength < MinTimestampLength || totalLength > MaxTimestampLength {
		panic(fmt.Sprintf("idgen: timestamp token length %d outside [%d, %d]",
			totalLength, MinTimestampLength, MaxTimestampLength))
	}

	millis := g.clock.Now().UnixMilli()
	if millis < 0 {
		panic(fmt.Sprintf("idgen: clock before epoch (%d ms)", millis))
	}

	scaled := uint64(millis) / TimestampDivisor
	if scaled >= uint64(1)<<(4*(totalLength-headroomDigits)) {
		panic(fmt.Sprintf("idgen: scaled timestamp %x does not fit %d hex digits",
			scaled, totalLength-headroomDigits))
	}

	value := scaled<<headroomBits + sequence.Add(1)
	if value >= uint64(1)<<(4*totalLength) {
		panic(fmt.Sprintf("idgen: timestamp token %x does not fit %d hex digits", value, totalLength))
	}

	return fmt.Sprintf("%0*x", totalLength, value)
}
