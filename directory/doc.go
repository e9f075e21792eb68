// Package directory publishes node identifier sessions in etcd so that other
// processes can discover them and learn their display names.
//
// Each announced instance session lives under
//
//	/{namespace}/sessions/{instancePart}/{sessionPart}
//
// as a JSON record attached to a lease. The lease is renewed every TTL/3;
// if the process dies the record expires with it. Withdraw revokes the lease
// immediately.
//
// Records read back from etcd are never trusted as-is: every identifier in a
// record is parsed again through the nodeid.Service before it is returned,
// and records that fail to parse are skipped and logged.
//
// Example usage:
//
//	dir, err := directory.New(directory.Config{
//	    Endpoints: []string{"localhost:2379"},
//	    Namespace: "identity",
//	    TTL:       30,
//	}, svc)
//	if err != nil {
//	    return err
//	}
//	defer dir.Close()
//
//	err = dir.Announce(ctx, directory.Announcement{
//	    Session:     session,
//	    DisplayName: "gateway",
//	    Endpoint:    "10.0.0.7:50051",
//	})
package directory
