// Package state holds the authoritative in-memory model of a replay:
// which units are alive, where they are, and what each user has selected
// or bound to control groups.
//
// # Ownership
//
// A Replay value is created per run and owned by exactly one caller (the
// engine's projection pass). Nothing here is safe for concurrent use and
// nothing needs to be: the pass is single-threaded, and every "read then
// mutate" sequence runs to completion before the next event is applied.
//
// # Invariants
//
//   - A tag present in the Registry always corresponds to one live unit.
//     Died removes it; a Died for an unknown tag is a no-op.
//   - Tags are compared by (index, recycle). (7,1) and (7,2) never alias.
//   - Every user has exactly 11 groups: 0-9 are addressable, 10 mirrors the
//     active selection and is only ever replaced wholesale.
//   - A dead unit's tag is purged from every group of every user.
//   - Selecting scales a unit's radius by SelectedRadiusScale once per
//     transition; deselecting divides it back. Selection changes always
//     unmark the previous selection before marking the new one.
package state
