// Package credstore is the credential store adapter used by pairing sessions.
//
// Each linking attempt owns exactly one Namespace, opened before the protocol
// client is constructed and destroyed during session teardown. The protocol
// client's key material is written through Put synchronously, so a crash right
// after an update does not lose the latest material.
//
// Backends: in-memory (dev/tests), file (one file per key, like a multi-file
// auth directory), Postgres (pgx) and Redis. Any backend can be wrapped by
// Sealed to encrypt material at rest.
package credstore
