// Package handles caches foreign class references, method IDs and static field
// IDs.
//
// A Cache has a two-phase life. During registration, which runs once inside the
// bridge's initialization call, each converter resolves every class and member it
// will ever use, described by a table of ClassSpec values. Afterwards the cache
// only serves lookups. Looking up a key that was never registered is not a panic:
// it returns one of the Cached*NotFoundError types, all of which match
// ErrCacheMiss.
//
// Class references are stored as durable references and re-homed into the
// caller's call context on every LookupClass. Method and field IDs are plain
// identifiers and are returned as is.
//
// Each converter owns its own Cache, so unrelated conversions never contend on
// the same lock.
package handles
