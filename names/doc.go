// Package names binds human-readable display names to node identifier
// sessions.
//
// Display names are kept apart from identity: renaming a session never
// changes its identifier, its equality or its hash. A Binding holds what is
// known about one session's name: a plaintext (resolved) name, an encrypted
// name that could not be decrypted yet, or nothing. Bindings are immutable
// values; a Holder swaps them atomically, so readers never observe a
// half-updated binding and no caller-side locking is required.
//
// Registry implements nodeid.NameRegistry on top of holders:
//
//	reg := names.NewRegistry(names.WithLogger(logger))
//	svc, _ := nodeid.NewService(nodeid.WithNameRegistry(reg))
//	session := svc.GenerateInstanceNodeSession(svc.GenerateInstanceNode())
//	svc.AssociateDisplayName(session, "gateway")
//	session.DisplayName() // "gateway"
//
// Encrypted names travel as "<groupId>:<base64 ciphertext>" blobs. A registry
// configured with a Decrypter (for example an AESGCMKeyring) turns them into
// resolved names; without the group's key the session displays
// NoAuthorizationPlaceholder.
package names
