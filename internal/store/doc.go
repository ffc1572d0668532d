// Package store provides SQLite-backed persistence for the conductor.
//
// Two things are stored:
//   - The datastore: key, canonical JSON value, modified time. It survives
//     restarts so a host can reload it before the first resolve.
//   - A journal of stat reports and delivered timeline callbacks, written
//     by a Journal that listens to conductor events.
//
// Timeline history is deliberately not stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Values are written as canonical JSON (internal/ir) so equal values are
// stored byte-identically.
package store
