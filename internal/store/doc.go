// Package store provides SQLite-backed durable storage for projection runs.
//
// A run is one forward pass of the engine over one source. The store keeps:
//   - Runs: source, configuration, versions, digest and summary
//   - Deltas: every emitted delta, keyed by (run_id, seq)
//
// # Critical Patterns
//
// Logical Identity and Time
//   - All ordering uses seq INTEGER (logical clock), NEVER timestamps
//   - Runs are ordered by their own seq, deltas by the engine's seq
//
// Deterministic Query Results
//   - All delta queries include ORDER BY seq ASC
//   - Run listings include ORDER BY seq ASC, id ASC COLLATE BINARY
//
// All-or-nothing Runs
//   - A RunWriter holds one transaction for the whole run
//   - Rollback, or a crash before Commit, leaves no trace of the run
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Delta payloads are RFC 8785 canonical JSON and delta IDs are computed by
// internal/ir/hash.go, so a stored run can be re-hashed and compared.
package store
