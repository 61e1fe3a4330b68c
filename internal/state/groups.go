package state

import (
	"slices"

	"github.com/roach88/loopmerge/internal/ir"
)

// Group layout per user.
const (
	// AddressableGroups is the number of hotkey groups (indices 0-9).
	AddressableGroups = 10

	// ActiveSelection is the index of the slot mirroring the current selection.
	ActiveSelection = 10

	groupSlots = AddressableGroups + 1
)

// PlayerGroups is one user's 11 group slots.
type PlayerGroups struct {
	slots [groupSlots][]ir.UnitTag
}

// Group returns a copy of slot i. Out-of-range indices return nil.
func (p *PlayerGroups) Group(i int) []ir.UnitTag {
	if i < 0 || i >= groupSlots {
		return nil
	}
	return slices.Clone(p.slots[i])
}

// Active returns a copy of the active selection.
func (p *PlayerGroups) Active() []ir.UnitTag {
	return slices.Clone(p.slots[ActiveSelection])
}

func (p *PlayerGroups) apply(op ir.ControlGroupOp, i int) {
	active := p.slots[ActiveSelection]
	switch op {
	case ir.OpSet:
		p.slots[i] = slices.Clone(active)
	case ir.OpSetAndSteal:
		p.steal(i)
		p.slots[i] = slices.Clone(active)
	case ir.OpClear:
		p.slots[i] = nil
	case ir.OpAppend:
		p.slots[i] = union(p.slots[i], active)
	case ir.OpAppendAndSteal:
		p.steal(i)
		p.slots[i] = union(p.slots[i], active)
	case ir.OpRecall:
		p.slots[ActiveSelection] = slices.Clone(p.slots[i])
	}
}

// steal removes the active selection from every addressable group but keep.
func (p *PlayerGroups) steal(keep int) {
	active := p.slots[ActiveSelection]
	if len(active) == 0 {
		return
	}
	for g := 0; g < AddressableGroups; g++ {
		if g == keep {
			continue
		}
		p.slots[g] = slices.DeleteFunc(p.slots[g], func(t ir.UnitTag) bool {
			return slices.Contains(active, t)
		})
	}
}

func (p *PlayerGroups) purge(tag ir.UnitTag) int {
	removed := 0
	for g := range p.slots {
		before := len(p.slots[g])
		p.slots[g] = slices.DeleteFunc(p.slots[g], func(t ir.UnitTag) bool {
			return t == tag
		})
		removed += before - len(p.slots[g])
	}
	return removed
}

func union(a, b []ir.UnitTag) []ir.UnitTag {
	out := make([]ir.UnitTag, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return ir.SortTags(out)
}

// dedupe drops repeated tags, keeping first occurrences in order.
func dedupe(tags []ir.UnitTag) []ir.UnitTag {
	out := make([]ir.UnitTag, 0, len(tags))
	seen := make(map[ir.UnitTag]struct{}, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ControlGroups tracks group slots for every user seen so far.
// Users are created lazily with 11 empty slots on first reference.
type ControlGroups struct {
	users map[ir.UserID]*PlayerGroups
}

// NewControlGroups creates an empty table.
func NewControlGroups() *ControlGroups {
	return &ControlGroups{users: make(map[ir.UserID]*PlayerGroups)}
}

// Observe returns the groups for user, creating them if needed.
func (c *ControlGroups) Observe(user ir.UserID) *PlayerGroups {
	p, ok := c.users[user]
	if !ok {
		p = &PlayerGroups{}
		c.users[user] = p
	}
	return p
}

// Player returns the groups for user without creating them.
func (c *ControlGroups) Player(user ir.UserID) (*PlayerGroups, bool) {
	p, ok := c.users[user]
	return p, ok
}

// Users returns all known users in ascending order.
func (c *ControlGroups) Users() []ir.UserID {
	users := make([]ir.UserID, 0, len(c.users))
	for u := range c.users {
		users = append(users, u)
	}
	slices.Sort(users)
	return users
}

// Apply runs one control-group operation and returns the active selection
// before and after it. Only OpRecall changes the active selection.
func (c *ControlGroups) Apply(user ir.UserID, index int, op ir.ControlGroupOp) (before, after []ir.UnitTag, err error) {
	if index < 0 || index >= AddressableGroups {
		return nil, nil, ErrInvalidGroup
	}
	p := c.Observe(user)
	before = p.Active()
	p.apply(op, index)
	return before, p.Active(), nil
}

// ReplaceSelection overwrites the active selection for user and returns the
// previous one. Duplicate tags are dropped.
func (c *ControlGroups) ReplaceSelection(user ir.UserID, tags []ir.UnitTag) []ir.UnitTag {
	p := c.Observe(user)
	before := p.slots[ActiveSelection]
	p.slots[ActiveSelection] = dedupe(tags)
	return before
}

// Purge removes tag from every slot of every user.
// Returns the number of memberships removed.
func (c *ControlGroups) Purge(tag ir.UnitTag) int {
	removed := 0
	for _, p := range c.users {
		removed += p.purge(tag)
	}
	return removed
}
