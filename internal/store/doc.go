// Package store persists schema catalogs in SQLite.
//
// Each distinct snapshot is written once, keyed by its content-addressed
// SnapshotID, together with the option model of every virtual table and
// column (the string maps produced by options.EncodeTable and
// options.EncodeColumn). Every refresh appends a row to the refresh history
// whether or not the snapshot changed, so the latest catalog can be loaded
// at startup without contacting the backend.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// History ordering uses the refresh seq, never timestamps.
package store
