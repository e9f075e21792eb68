package directory

import (
	"context"

	"github.com/zero-day-ai/identity/nodeid"
)

// NameSink receives the display names found in the directory.
// *names.Registry implements it.
type NameSink interface {
	AssociateDisplayName(id nodeid.InstanceNodeSessionID, name string)
	AssociateDisplayNameWithLogicalNode(id nodeid.LogicalNodeSessionID, name string)
	AssociateEncryptedDisplayName(id nodeid.NodeIdentifier, blob string)
	Forget(session nodeid.InstanceNodeSessionID)
}

// Sync copies the names of all announced sessions into sink and returns the
// number of sessions seen.
func (d *Directory) Sync(ctx context.Context, sink NameSink) (int, error) {
	sessions, err := d.Discover(ctx)
	if err != nil {
		return 0, err
	}
	apply(sink, sessions)
	return len(sessions), nil
}

// Follow keeps sink in step with the directory until ctx is done or the
// watch ends. Sessions that disappear from the directory are forgotten,
// except those announced through d itself.
func (d *Directory) Follow(ctx context.Context, sink NameSink) error {
	updates, err := d.Watch(ctx)
	if err != nil {
		return err
	}

	known := make(map[string]nodeid.InstanceNodeSessionID)
	for sessions := range updates {
		apply(sink, sessions)

		current := make(map[string]nodeid.InstanceNodeSessionID, len(sessions))
		for _, a := range sessions {
			current[a.Session.String()] = a.Session
		}
		for key, s := range known {
			if _, ok := current[key]; ok || d.Owns(s) {
				continue
			}
			d.logger.Debug("session left directory", "session", key)
			sink.Forget(s)
		}
		known = current
	}
	return ctx.Err()
}

func apply(sink NameSink, sessions []Announcement) {
	for _, a := range sessions {
		switch {
		case a.DisplayName != "":
			sink.AssociateDisplayName(a.Session, a.DisplayName)
		case a.EncryptedName != "":
			sink.AssociateEncryptedDisplayName(a.Session, a.EncryptedName)
		}
		for _, ln := range a.LogicalNodes {
			if ln.DisplayName != "" {
				sink.AssociateDisplayNameWithLogicalNode(ln.ID, ln.DisplayName)
			}
		}
	}
}
