// Package state persists catalog snapshots.
//
//   - Store[T] loads and saves a single snapshot for a single Ref.
//   - MemoryStore and SQLiteStore are the bundled stores; SQLite rows hold
//     zstd-compressed JSON.
//   - Manager captures a catalog (or one of its strata, such as the user's
//     edits) into a store and restores it, using the snapshot fingerprint as
//     ETag for optimistic concurrency.
//
// Keys:
//
//	Ref.Identifier() yields catalog/<catalog>[/strata/<stratum>][/owner/<owner>].
package state
