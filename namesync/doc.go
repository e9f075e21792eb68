// Package namesync propagates display-name associations between processes
// through Redis.
//
// # Redis Key Schema
//
// All keys share a configurable prefix (default "identity"):
//
//	identity:names                      - Hash: canonical identifier -> JSON Update
//	identity:names:updates              - Pub/sub channel carrying JSON Updates
//	identity:session:{session}:alive    - String with TTL, refreshed by Heartbeat
//
// The hash holds the latest name of every session so that late joiners can
// catch up with Snapshot; the channel carries changes as they happen.
//
// # Lifetime
//
// Withdraw deletes a session's hash entries and presence key and publishes a
// removal, which makes subscribers forget the session. A process that dies
// without withdrawing leaves its entries behind until its presence key
// expires; from then on Snapshot skips them and prunes them from the hash.
//
// # Validation
//
// Identifiers arriving from Redis are untrusted. Apply parses every Update
// through the nodeid.Service before it reaches the name registry, and drops
// updates whose identifier is malformed or not session-bearing.
//
// # Echo Suppression
//
// Every Client tags what it publishes with a random origin (a UUID).
// Subscribe skips messages carrying its own origin, so a process does not
// re-apply its own announcements.
//
// # Usage Example
//
//	client, err := namesync.New(namesync.Options{URL: "redis://localhost:6379"}, svc)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.PublishName(ctx, session, "gateway"); err != nil {
//	    return err
//	}
//
//	// apply remote names until ctx is done
//	go client.Run(ctx, registry)
package namesync
