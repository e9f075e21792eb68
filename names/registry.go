package names

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/zero-day-ai/identity/nodeid"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDecrypter enables decryption of encrypted display names.
func WithDecrypter(d Decrypter) Option {
	return func(r *Registry) {
		r.decrypter = d
	}
}

// entry is the registry's record for one session-bearing identifier.
type entry struct {
	id      nodeid.NodeIdentifier
	binding Holder
}

// Registry stores display-name bindings for instance sessions and logical
// node sessions. It implements nodeid.NameRegistry.
//
// Lookups by InstanceNode or LogicalNode resolve through the most recent
// session seen for that instance, where "most recent" is the greatest
// session part.
type Registry struct {
	logger    *slog.Logger
	decrypter Decrypter

	mu      sync.RWMutex
	entries map[string]*entry
	latest  map[string]nodeid.InstanceNodeSessionID
}

var _ nodeid.NameRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:  slog.Default(),
		entries: make(map[string]*entry),
		latest:  make(map[string]nodeid.InstanceNodeSessionID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AssociateDisplayName sets the plaintext name of an instance session.
func (r *Registry) AssociateDisplayName(id nodeid.InstanceNodeSessionID, name string) {
	r.update(id, func(b Binding) Binding { return b.WithResolvedName(name) })
}

// AssociateDisplayNameWithLogicalNode sets the plaintext name of a logical
// node session.
func (r *Registry) AssociateDisplayNameWithLogicalNode(id nodeid.LogicalNodeSessionID, name string) {
	r.update(id, func(b Binding) Binding { return b.WithResolvedName(name) })
}

// AssociateEncryptedDisplayName records an encrypted name blob for a
// session-bearing identifier. If a Decrypter is configured and holds the
// group's key, the decrypted name becomes the resolved name. A malformed blob
// is logged and discarded, leaving the binding unchanged.
func (r *Registry) AssociateEncryptedDisplayName(id nodeid.NodeIdentifier, blob string) {
	if _, ok := nodeid.LookupSessionPart(id); !ok {
		panic(fmt.Sprintf("names: encrypted display name needs a session identifier, got %v", id))
	}

	group, ciphertext, err := SplitEncryptedBlob(blob)
	if err != nil {
		r.logger.Warn("discarding encrypted display name", "id", id.String(), "error", err)
		return
	}

	var (
		plain       string
		unavailable bool
	)
	if r.decrypter == nil {
		unavailable = true
	} else if plain, err = r.decrypter.Decrypt(group, ciphertext); err != nil {
		unavailable = true
		if !errors.Is(err, ErrKeyUnavailable) {
			r.logger.Warn("failed to decrypt display name", "id", id.String(), "group", group, "error", err)
		}
	}

	r.update(id, func(b Binding) Binding {
		b, _ = b.WithEncryptedNameData(blob)
		if unavailable {
			return b.WithDecryptionUnavailable()
		}
		return b.WithResolvedName(plain)
	})
}

// Binding returns the binding stored for a session-bearing identifier.
func (r *Registry) Binding(id nodeid.NodeIdentifier) (Binding, bool) {
	if id == nil {
		return Binding{}, false
	}
	r.mu.RLock()
	e, ok := r.entries[id.String()]
	r.mu.RUnlock()
	if !ok {
		return Binding{}, false
	}
	return e.binding.Load(), true
}

// ResolveDisplayName implements nodeid.NameResolver.
//
// A logical node session without its own name falls back to its instance
// session. InstanceNode and LogicalNode identifiers resolve through the
// latest known session of their instance.
func (r *Registry) ResolveDisplayName(id nodeid.NodeIdentifier) string {
	if id == nil || id.IsZero() {
		return nodeid.UnresolvedDisplayName
	}

	switch v := id.(type) {
	case nodeid.InstanceNodeSessionID:
		return r.display(v)
	case nodeid.LogicalNodeSessionID:
		if b, ok := r.Binding(v); ok && !b.IsEmpty() {
			return b.Display()
		}
		return r.display(v.ToInstanceNodeSession())
	case nodeid.InstanceNodeID:
		session, ok := r.latestSession(v.InstancePart())
		if !ok {
			return nodeid.UnresolvedDisplayName
		}
		return r.display(session)
	case nodeid.LogicalNodeID:
		session, ok := r.latestSession(v.InstancePart())
		if !ok {
			return nodeid.UnresolvedDisplayName
		}
		return r.ResolveDisplayName(v.CombineWithInstanceNodeSession(session))
	default:
		return nodeid.UnresolvedDisplayName
	}
}

// Forget drops the bindings of an instance session and of every logical
// node session within it.
func (r *Registry) Forget(session nodeid.InstanceNodeSessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if s, ok := nodeid.LookupSessionPart(e.id); ok &&
			s == session.SessionPart() && e.id.InstancePart() == session.InstancePart() {
			delete(r.entries, key)
		}
	}
	if latest, ok := r.latest[session.InstancePart()]; ok && latest.Equal(session) {
		delete(r.latest, session.InstancePart())
		r.reindexLocked(session.InstancePart())
	}
}

// Len returns the number of stored bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// PrintAllNameAssociations writes every binding to w, sorted by identifier.
func (r *Registry) PrintAllNameAssociations(w io.Writer, introText string) error {
	return r.print(w, introText, func(Association) (bool, error) { return true, nil })
}

// Association is one row of a name dump.
type Association struct {
	ID      nodeid.NodeIdentifier
	Binding Binding
}

// Associations returns a snapshot of all bindings sorted by identifier.
func (r *Registry) Associations() []Association {
	r.mu.RLock()
	out := make([]Association, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Association{ID: e.id, Binding: e.binding.Load()})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (r *Registry) print(w io.Writer, introText string, keep func(Association) (bool, error)) error {
	if _, err := fmt.Fprintln(w, introText); err != nil {
		return err
	}

	printed := 0
	for _, a := range r.Associations() {
		ok, err := keep(a)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s [%s] %s\n", a.ID, a.ID.Type(), a.Binding.Display()); err != nil {
			return err
		}
		printed++
	}
	if printed == 0 {
		_, err := fmt.Fprintln(w, "  (none)")
		return err
	}
	return nil
}

func (r *Registry) update(id nodeid.NodeIdentifier, fn func(Binding) Binding) {
	if id == nil || id.IsZero() {
		panic("names: cannot bind a display name to a zero identifier")
	}

	e := r.entry(id)
	b := e.binding.Update(fn)
	r.logger.Debug("display name updated", "id", id.String(), "type", id.Type().String(), "display", b.Display())
}

func (r *Registry) entry(id nodeid.NodeIdentifier) *entry {
	key := id.String()

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e
	}
	e = &entry{id: id}
	r.entries[key] = e
	r.indexLocked(instanceSessionOf(id))
	return e
}

func (r *Registry) indexLocked(session nodeid.InstanceNodeSessionID) {
	cur, ok := r.latest[session.InstancePart()]
	if !ok || session.SessionPart() > cur.SessionPart() {
		r.latest[session.InstancePart()] = session
	}
}

func (r *Registry) reindexLocked(instancePart string) {
	for _, e := range r.entries {
		if e.id.InstancePart() == instancePart {
			r.indexLocked(instanceSessionOf(e.id))
		}
	}
}

// instanceSessionOf returns the instance session a session-bearing
// identifier belongs to.
func instanceSessionOf(id nodeid.NodeIdentifier) nodeid.InstanceNodeSessionID {
	switch v := id.(type) {
	case nodeid.InstanceNodeSessionID:
		return v
	case nodeid.LogicalNodeSessionID:
		return v.ToInstanceNodeSession()
	default:
		panic(fmt.Sprintf("names: %s identifier %v has no session", id.Type(), id))
	}
}

func (r *Registry) latestSession(instancePart string) (nodeid.InstanceNodeSessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.latest[instancePart]
	return s, ok
}

func (r *Registry) display(id nodeid.InstanceNodeSessionID) string {
	b, ok := r.Binding(id)
	if !ok {
		return nodeid.UnresolvedDisplayName
	}
	return b.Display()
}
