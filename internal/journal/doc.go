// Package journal records build generations in SQLite.
//
// The journal is an append-only log with:
//   - Builds: one row per applied or failed generation of a session
//   - Artifacts: the files a successful build produced, with content digests
//   - Manifests: the original -> versioned entries of each finalize run
//
// # Ordering
//
// Rows are ordered by their autoincrement id, never by wall-clock time, so
// History returns builds in the order the controller applied them. Durations
// are stored for display only.
//
// # Database Configuration
//
//   - WAL mode: the history command can read while a watch session writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000 plus retry of busy transactions
//   - Foreign key enforcement
package journal
