// Package ir provides the shared value types for loopmerge.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Contents:
//   - UnitTag: stable unit identity (index + recycle counter)
//   - TrackerEvent / GameEvent: the two pre-decoded, delta-encoded input streams
//   - TrackerPayload / GamePayload: closed sum types over event kinds
//   - Delta: one projected change handed to a rendering sink
//   - Scale: the empirically fitted coordinate ratios
//   - MarshalCanonical / DeltaID / Digest: deterministic serialization and hashing
//
// Key design constraints:
//   - Loops are int64 and only ever advance within a stream
//   - All JSON/YAML tags use snake_case
//   - Delta ordering is by Seq (logical clock), never wall-clock time
package ir
