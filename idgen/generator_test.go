package idgen

import (
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lowerHex = regexp.MustCompile(`^[0-9a-f]+$`)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestRandomHex(t *testing.T) {
	tests := []struct {
		name   string
		secure bool
	}{
		{name: "secure source", secure: true},
		{name: "fast source", secure: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := New(WithSecureRandom(tt.secure))
			assert.Equal(t, tt.secure, gen.Secure())

			seen := make(map[string]struct{}, 10000)
			for i := 0; i < 10000; i++ {
				token := gen.RandomHex(32)
				require.Len(t, token, 32)
				require.Regexp(t, lowerHex, token)
				_, dup := seen[token]
				require.False(t, dup, "duplicate token %s", token)
				seen[token] = struct{}{}
			}
		})
	}
}

func TestRandomHexOddLengths(t *testing.T) {
	gen := New()
	for _, n := range []int{1, 3, 7, 9, 17} {
		token := gen.RandomHex(n)
		assert.Len(t, token, n)
		assert.Regexp(t, lowerHex, token)
	}
}

func TestRandomHexPanics(t *testing.T) {
	t.Run("non-positive length", func(t *testing.T) {
		assert.Panics(t, func() { New().RandomHex(0) })
	})

	t.Run("entropy failure", func(t *testing.T) {
		gen := New(WithRandomReader(failingReader{}))
		assert.Panics(t, func() { gen.RandomHex(8) })
	})
}

func TestTimestampHexMonotonicWithFixedClock(t *testing.T) {
	gen := New(WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}))

	prev := gen.TimestampHex(10)
	for i := 0; i < 1000; i++ {
		next := gen.TimestampHex(10)
		require.Len(t, next, 10)
		require.Regexp(t, lowerHex, next)
		require.Less(t, prev, next)
		prev = next
	}
}

func TestTimestampHexFollowsClock(t *testing.T) {
	early := New(WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}))
	late := New(WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)}))

	a := early.TimestampHex(10)
	b := late.TimestampHex(10)
	assert.Less(t, a, b)
}

func TestTimestampHexSharedSequence(t *testing.T) {
	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	first := New(WithClock(clock))
	second := New(WithClock(clock))

	a := first.TimestampHex(10)
	b := second.TimestampHex(10)
	c := first.TimestampHex(10)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}

func TestTimestampHexConcurrent(t *testing.T) {
	gen := New(WithClock(fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}))

	const workers = 8
	const perWorker = 500

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, gen.TimestampHex(10))
			}
			mu.Lock()
			defer mu.Unlock()
			for _, token := range local {
				seen[token] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestTimestampHexPanics(t *testing.T) {
	t.Run("length too short", func(t *testing.T) {
		assert.Panics(t, func() { New().TimestampHex(2) })
	})

	t.Run("length too long", func(t *testing.T) {
		assert.Panics(t, func() { New().TimestampHex(16) })
	})

	t.Run("scaled timestamp overflow", func(t *testing.T) {
		// 2200 in seconds exceeds eight hex digits.
		gen := New(WithClock(fixedClock{now: time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)}))
		assert.Panics(t, func() { gen.TimestampHex(10) })
	})

	t.Run("clock before epoch", func(t *testing.T) {
		gen := New(WithClock(fixedClock{now: time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)}))
		assert.Panics(t, func() { gen.TimestampHex(10) })
	})
}
