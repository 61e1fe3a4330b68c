package ir

import (
	"cmp"
	"fmt"
	"slices"
)

// recycleBits is the width of the recycle counter in a packed tag.
const recycleBits = 18

// MaxRecycle is the largest recycle counter that survives packing.
const MaxRecycle = 1<<recycleBits - 1

// MaxPackedTag is the largest packed tag whose index fits in 32 bits.
const MaxPackedTag uint64 = 1<<(32+recycleBits) - 1

// UnitTag identifies one unit instance.
//
// Index is a slot number the game recycles; Recycle counts how many times the
// slot has been reused. Two tags are equal iff both components match, so a
// Died event for (7,1) never touches a live (7,2).
//
// UnitTag is comparable and is used directly as a map key.
type UnitTag struct {
	Index   uint32 `json:"index" yaml:"index"`
	Recycle uint32 `json:"recycle" yaml:"recycle"`
}

// NewUnitTag builds a tag from its components.
func NewUnitTag(index, recycle uint32) UnitTag {
	return UnitTag{Index: index, Recycle: recycle}
}

// Pack encodes the tag as (index << 18) | recycle.
// Injective for every tag that passes Valid.
func (t UnitTag) Pack() uint64 {
	return uint64(t.Index)<<recycleBits | uint64(t.Recycle)
}

// UnpackUnitTag reverses Pack. Bits above MaxPackedTag are dropped, so
// callers decoding untrusted input check the bound first.
func UnpackUnitTag(packed uint64) UnitTag {
	return UnitTag{
		Index:   uint32(packed >> recycleBits),
		Recycle: uint32(packed & MaxRecycle),
	}
}

// Valid reports whether the recycle counter fits the packed encoding.
func (t UnitTag) Valid() bool {
	return t.Recycle <= MaxRecycle
}

// String renders the packed form, which is what entity paths use.
func (t UnitTag) String() string {
	return fmt.Sprintf("%d", t.Pack())
}

// Compare orders tags by index, then recycle.
func (t UnitTag) Compare(other UnitTag) int {
	if c := cmp.Compare(t.Index, other.Index); c != 0 {
		return c
	}
	return cmp.Compare(t.Recycle, other.Recycle)
}

// SortTags sorts in place and drops duplicates, returning the shortened slice.
func SortTags(tags []UnitTag) []UnitTag {
	slices.SortFunc(tags, UnitTag.Compare)
	return slices.Compact(tags)
}
