package health

import (
	"context"
	"fmt"

	"github.com/zero-day-ai/identity/directory"
	"github.com/zero-day-ai/identity/nodeid"
)

// SessionCheck verifies that session still round-trips through svc: its
// canonical string parses back to an equal identifier.
func SessionCheck(svc *nodeid.Service, session nodeid.InstanceNodeSessionID) HealthStatus {
	if session.IsZero() {
		return Unhealthy("no instance session", nil)
	}

	parsed, err := svc.ParseInstanceNodeSession(session.String())
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("session %s does not parse", session),
			map[string]any{"session": session.String(), "error": err.Error()},
		)
	}
	if !parsed.Equal(session) {
		return Unhealthy(
			fmt.Sprintf("session %s parsed as %s", session, parsed),
			map[string]any{"session": session.String()},
		)
	}
	return Healthy(fmt.Sprintf("session %s is valid", session))
}

// SessionDirectory is the part of *directory.Directory used by
// DirectoryCheck.
type SessionDirectory interface {
	Announced(session nodeid.InstanceNodeSessionID) bool
	DiscoverInstance(ctx context.Context, instance nodeid.InstanceNodeID) ([]directory.Announcement, error)
}

// DirectoryCheck verifies that session holds a directory lease and is
// visible to discovery. A held lease that discovery cannot confirm is
// reported as degraded.
func DirectoryCheck(ctx context.Context, dir SessionDirectory, session nodeid.InstanceNodeSessionID) HealthStatus {
	details := map[string]any{"session": session.String()}

	if !dir.Announced(session) {
		return Unhealthy(fmt.Sprintf("session %s is not announced", session), details)
	}

	found, err := dir.DiscoverInstance(ctx, session.ToInstanceNode())
	if err != nil {
		details["error"] = err.Error()
		return Degraded("directory discovery failed", details)
	}
	for _, a := range found {
		if a.Session.Equal(session) {
			return Healthy(fmt.Sprintf("session %s is announced", session))
		}
	}
	details["discovered"] = len(found)
	return Degraded(fmt.Sprintf("session %s is not discoverable", session), details)
}

// PresenceTracker is the part of *namesync.Client used by PresenceCheck.
type PresenceTracker interface {
	Alive(ctx context.Context, session nodeid.InstanceNodeSessionID) (bool, error)
}

// PresenceCheck verifies that the heartbeat of session has not expired.
// An expired heartbeat is degraded; an unreachable tracker is unhealthy.
func PresenceCheck(ctx context.Context, tracker PresenceTracker, session nodeid.InstanceNodeSessionID) HealthStatus {
	alive, err := tracker.Alive(ctx, session)
	if err != nil {
		return Unhealthy("presence lookup failed", map[string]any{
			"session": session.String(),
			"error":   err.Error(),
		})
	}
	if !alive {
		return Degraded(fmt.Sprintf("heartbeat of %s expired", session), map[string]any{
			"session": session.String(),
		})
	}
	return Healthy(fmt.Sprintf("session %s is alive", session))
}
