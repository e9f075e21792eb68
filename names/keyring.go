package names

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrKeyUnavailable is returned by a Decrypter that holds no key for the
// requested encryption group.
var ErrKeyUnavailable = errors.New("no key for encryption group")

// Decrypter turns an encrypted display name back into plaintext.
type Decrypter interface {
	// Decrypt returns the plaintext name for ciphertext, which is the
	// second field of an encrypted name blob. It returns ErrKeyUnavailable
	// when the group is unknown.
	Decrypt(groupID, ciphertext string) (string, error)
}

// AESGCMKeyring holds one AES key per encryption group. Ciphertext is
// base64(nonce || sealed name), matching what Seal produces.
type AESGCMKeyring struct {
	mu    sync.RWMutex
	aeads map[string]cipher.AEAD
	rand  io.Reader
}

// NewAESGCMKeyring creates a keyring from raw keys. Keys must be 16, 24 or
// 32 bytes long.
func NewAESGCMKeyring(keys map[string][]byte) (*AESGCMKeyring, error) {
	k := &AESGCMKeyring{
		aeads: make(map[string]cipher.AEAD, len(keys)),
		rand:  rand.Reader,
	}
	for group, key := range keys {
		if err := k.AddKey(group, key); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// AddKey installs or replaces the key of a group.
func (k *AESGCMKeyring) AddKey(groupID string, key []byte) error {
	if groupID == "" {
		return fmt.Errorf("encryption group id cannot be empty")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("key for group %q: %w", groupID, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("key for group %q: %w", groupID, err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.aeads[groupID] = aead
	return nil
}

// Groups returns the number of groups with a key.
func (k *AESGCMKeyring) Groups() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.aeads)
}

// Decrypt implements Decrypter.
func (k *AESGCMKeyring) Decrypt(groupID, ciphertext string) (string, error) {
	aead, ok := k.aead(groupID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyUnavailable, groupID)
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(groupID))
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Seal encrypts name for groupID and returns a complete encrypted name blob.
func (k *AESGCMKeyring) Seal(groupID, name string) (string, error) {
	aead, ok := k.aead(groupID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyUnavailable, groupID)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(k.rand, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(name), []byte(groupID))
	return JoinEncryptedBlob(groupID, base64.StdEncoding.EncodeToString(sealed)), nil
}

func (k *AESGCMKeyring) aead(groupID string) (cipher.AEAD, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	aead, ok := k.aeads[groupID]
	return aead, ok
}
