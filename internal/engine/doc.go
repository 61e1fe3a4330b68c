// Package engine implements the loopmerge projection pass.
//
// The engine turns two delta-encoded event streams of one match into a
// single ordered timeline and projects it onto replay state, emitting one or
// more deltas per event to a sink.
//
// ARCHITECTURE:
//
// Single Forward Pass:
// Engine.Project runs in the caller's goroutine with no internal
// concurrency. This ensures:
// - Reproducible delta order (and therefore a reproducible run digest)
// - "Read state, then mutate" sequences never race
// - Simple reasoning about which event caused which delta
//
// Event Processing Flow:
// 1. Scheduler.Next merges the heads of the tracker and game streams
// 2. Filters.Accept drops events outside the configured view
// 3. Budget.Take enforces max-event limits (short-circuit, not skip)
// 4. The projector mutates state.Replay, then emits deltas
// 5. Each delta is stamped by Clock, hashed into the run digest and sent
//
// CRITICAL PATTERNS:
//
// Merge Key:
// key = floor(adjusted_loop) * PriorityBase + stream priority. Tracker loops
// are rescaled by the configured ratio once, in the scheduler; the adjusted
// value is both the sort key and the delta timestamp. Ties go tracker-first.
//
// Logical Clock:
// Every delta gets Seq from Clock.Next(). NEVER use wall-clock time.
//
// Failure Semantics:
// Unknown tags, invalid groups and unknown events are logged at debug level,
// counted, and skipped. A sink error aborts the pass and is returned.
package engine
