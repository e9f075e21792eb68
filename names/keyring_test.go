package names

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, 32)
}

func TestAESGCMKeyringRoundTrip(t *testing.T) {
	k, err := NewAESGCMKeyring(map[string][]byte{"ops": testKey(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, k.Groups())

	blob, err := k.Seal("ops", "gateway")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, "ops:"))

	group, ciphertext, err := SplitEncryptedBlob(blob)
	require.NoError(t, err)

	plain, err := k.Decrypt(group, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "gateway", plain)
}

func TestAESGCMKeyringErrors(t *testing.T) {
	k, err := NewAESGCMKeyring(map[string][]byte{"ops": testKey(1)})
	require.NoError(t, err)

	t.Run("unknown group", func(t *testing.T) {
		_, err := k.Decrypt("dev", "abc")
		assert.ErrorIs(t, err, ErrKeyUnavailable)

		_, err = k.Seal("dev", "x")
		assert.ErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := k.Decrypt("ops", "%%%")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrKeyUnavailable)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := k.Decrypt("ops", "AAAA")
		assert.Error(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := NewAESGCMKeyring(map[string][]byte{"ops": testKey(2)})
		require.NoError(t, err)
		blob, err := other.Seal("ops", "gateway")
		require.NoError(t, err)

		_, ciphertext, err := SplitEncryptedBlob(blob)
		require.NoError(t, err)
		_, err = k.Decrypt("ops", ciphertext)
		assert.Error(t, err)
	})

	t.Run("bad key length", func(t *testing.T) {
		_, err := NewAESGCMKeyring(map[string][]byte{"ops": []byte("short")})
		assert.Error(t, err)
	})

	t.Run("empty group", func(t *testing.T) {
		assert.Error(t, k.AddKey("", testKey(3)))
	})
}
