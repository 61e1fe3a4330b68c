// Package source loads pre-decoded tracker and game streams.
//
// A source document is YAML (or JSON, which YAML accepts) with two
// top-level sequences:
//
//	tracker:
//	  - delta: 0
//	    unit_init: {tag: {index: 5, recycle: 0}, name: Marine, owner: 1, x: 0, y: 0}
//	game:
//	  - delta: 3
//	    user: 1
//	    selection_delta: {tags: [{index: 5, recycle: 0}]}
//
// Every event carries its delta and exactly one payload key. Tags may be
// written as {index, recycle} or as the packed integer used in entity paths.
//
// Documents may be zstd- or gzip-compressed; the format is detected from
// the leading magic bytes, so the file extension does not matter.
//
// The excluded stream of an event-class restriction is kept as a raw
// yaml.Node and never decoded.
package source
