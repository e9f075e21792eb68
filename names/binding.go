package names

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/zero-day-ai/identity/nodeid"
)

// NoAuthorizationPlaceholder is displayed for a session whose name is only
// known in encrypted form.
const NoAuthorizationPlaceholder = "<no authorization>"

// blobSeparator splits an encrypted name blob into group id and ciphertext.
const blobSeparator = ":"

// ErrMalformedBlob indicates an encrypted name blob that is not
// "<groupId>:<ciphertext>" with both fields non-empty.
var ErrMalformedBlob = errors.New("malformed encrypted name blob")

// Binding is the display-name state of one session. The zero value is an
// empty binding. Bindings are values: every With* method returns a modified
// copy and leaves the receiver untouched.
type Binding struct {
	resolvedName          string
	resolved              bool
	encryptionGroupID     string
	encryptedName         string
	decryptionUnavailable bool
}

// WithResolvedName returns a copy carrying the plaintext name. A resolved
// name takes precedence over any encrypted state.
func (b Binding) WithResolvedName(name string) Binding {
	b.resolvedName = name
	b.resolved = true
	return b
}

// WithEncryptedNameData returns a copy carrying the group id and ciphertext
// parsed from blob. A malformed blob leaves the binding as it was and is
// reported as ErrMalformedBlob.
func (b Binding) WithEncryptedNameData(blob string) (Binding, error) {
	group, ciphertext, err := SplitEncryptedBlob(blob)
	if err != nil {
		return b, err
	}
	b.encryptionGroupID = group
	b.encryptedName = ciphertext
	return b, nil
}

// WithDecryptionUnavailable returns a copy recording that no key was
// available for the encrypted name.
func (b Binding) WithDecryptionUnavailable() Binding {
	b.decryptionUnavailable = true
	return b
}

// ResolvedName returns the plaintext name, if one is known.
func (b Binding) ResolvedName() (string, bool) {
	return b.resolvedName, b.resolved
}

// EncryptedName returns the encryption group and ciphertext, if set.
func (b Binding) EncryptedName() (groupID, ciphertext string, ok bool) {
	return b.encryptionGroupID, b.encryptedName, b.encryptedName != ""
}

// DecryptionUnavailable reports whether decryption was attempted without a
// key.
func (b Binding) DecryptionUnavailable() bool {
	return b.decryptionUnavailable
}

// IsEmpty reports whether nothing is known about the name.
func (b Binding) IsEmpty() bool {
	return !b.resolved && b.encryptedName == ""
}

// Display returns the resolved name, else NoAuthorizationPlaceholder when
// only an encrypted name is known, else nodeid.UnresolvedDisplayName.
func (b Binding) Display() string {
	switch {
	case b.resolved:
		return b.resolvedName
	case b.encryptedName != "":
		return NoAuthorizationPlaceholder
	default:
		return nodeid.UnresolvedDisplayName
	}
}

// SplitEncryptedBlob splits "<groupId>:<ciphertext>" into its fields.
func SplitEncryptedBlob(blob string) (groupID, ciphertext string, err error) {
	groupID, ciphertext, ok := strings.Cut(blob, blobSeparator)
	if !ok || groupID == "" || ciphertext == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedBlob, blob)
	}
	return groupID, ciphertext, nil
}

// JoinEncryptedBlob is the inverse of SplitEncryptedBlob.
func JoinEncryptedBlob(groupID, ciphertext string) string {
	return groupID + blobSeparator + ciphertext
}

// Holder publishes a Binding to concurrent readers. The zero value holds an
// empty binding.
type Holder struct {
	current atomic.Pointer[Binding]
}

// Load returns the current binding.
func (h *Holder) Load() Binding {
	if b := h.current.Load(); b != nil {
		return *b
	}
	return Binding{}
}

// Store replaces the binding.
func (h *Holder) Store(b Binding) {
	h.current.Store(&b)
}

// Update applies fn to the current binding and publishes the result. fn may
// run more than once under contention and must not have side effects.
func (h *Holder) Update(fn func(Binding) Binding) Binding {
	for {
		old := h.current.Load()
		var cur Binding
		if old != nil {
			cur = *old
		}
		next := fn(cur)
		if h.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}
