// Package harness runs conformance scenarios against the projection engine.
//
// A scenario is a YAML file holding a stream document, an optional
// configuration overlay and a list of assertions. Each scenario runs through
// the real engine into a fresh in-memory store; the trace is read back from
// the store, so a passing scenario also exercises persistence.
//
// # Scenario Format
//
//	name: marine_lifecycle
//	description: "Two marines are selected, grouped, recalled and one dies"
//	config:
//	  include_stats: true
//	  filters: {user_id: 0}
//	streams:
//	  tracker:
//	    - delta: 0
//	      unit_init: {tag: {index: 1, recycle: 0}, name: Marine, owner: 1, x: 60, y: 60}
//	  game:
//	    - delta: 4
//	      user: 0
//	      selection_delta: {tags: [{index: 1, recycle: 0}]}
//	assertions:
//	  - type: registry_contains
//	    tag: {index: 1, recycle: 0}
//	    selected: true
//	  - type: delta_order
//	    paths: [Unit/262144/Init, Unit/262144/Selected]
//
// The config block uses the same keys as a configuration file and is
// checked against the same schema.
//
// # Assertion Types
//
//   - registry_contains: a live unit with the tag exists (optionally with name and selected)
//   - registry_absent: no live unit has the tag
//   - registry_count: exactly count live units
//   - group_equals: a user's group slot holds exactly the given tags (slot 10 is the active selection)
//   - unit_radius: a live unit has the given radius
//   - delta_contains: some delta has the kind and path
//   - delta_order: first occurrences of paths appear in order
//   - delta_count: exactly count deltas of a kind (all kinds when empty)
//   - summary: the run summary matches the given fields
//
// # Golden Traces
//
// RunWithGolden compares the trace with testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
