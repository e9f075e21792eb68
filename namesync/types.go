package namesync

import (
	"errors"
	"fmt"
	"time"

	"github.com/zero-day-ai/identity/nodeid"
)

// Update is one display-name association as stored in the names hash and
// published on the updates channel.
type Update struct {
	// ID is the canonical identifier string of a session-bearing identifier.
	ID string `json:"id"`

	// Type is the identifier type, e.g. "instance_node_session".
	Type string `json:"type"`

	// Name is the plaintext display name. Empty if EncryptedName is set.
	Name string `json:"name,omitempty"`

	// EncryptedName is an encrypted name blob ("<group>:<ciphertext>").
	EncryptedName string `json:"encrypted_name,omitempty"`

	// Removed marks the withdrawal of an instance session together with all
	// of its logical node sessions. Removals carry no name.
	Removed bool `json:"removed,omitempty"`

	// Origin identifies the publishing client.
	Origin string `json:"origin"`

	// PublishedAt is the Unix timestamp in milliseconds when the update was
	// published.
	PublishedAt int64 `json:"published_at"`
}

// Validate checks the fields that do not need a Service. Identifier syntax
// is checked by Apply.
func (u Update) Validate() error {
	_, err := u.validate()
	return err
}

// validate is Validate returning the parsed identifier type.
func (u Update) validate() (nodeid.Type, error) {
	if u.ID == "" {
		return 0, errors.New("id is required")
	}
	t, err := nodeid.ParseType(u.Type)
	if err != nil {
		return 0, err
	}
	if !t.HasSessionPart() {
		return 0, fmt.Errorf("type %s has no session part", t)
	}
	if u.Name != "" && u.EncryptedName != "" {
		return 0, errors.New("name and encrypted_name are mutually exclusive")
	}
	if u.Removed {
		if t != nodeid.TypeInstanceNodeSession {
			return 0, fmt.Errorf("removal of a %s", t)
		}
		if u.Name != "" || u.EncryptedName != "" {
			return 0, errors.New("removal carries a name")
		}
	}
	if u.Origin == "" {
		return 0, errors.New("origin is required")
	}
	return t, nil
}

// Time returns PublishedAt as a time.Time.
func (u Update) Time() time.Time {
	return time.UnixMilli(u.PublishedAt)
}

// Sink receives validated name associations. *names.Registry implements it.
type Sink interface {
	AssociateDisplayName(id nodeid.InstanceNodeSessionID, name string)
	AssociateDisplayNameWithLogicalNode(id nodeid.LogicalNodeSessionID, name string)
	AssociateEncryptedDisplayName(id nodeid.NodeIdentifier, blob string)
	Forget(session nodeid.InstanceNodeSessionID)
}
