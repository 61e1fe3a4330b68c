package state

import (
	"slices"

	"github.com/roach88/loopmerge/internal/ir"
)

// Replay is the per-run context: the unit registry plus every user's
// control groups. Operations that touch both go through here so the two
// never drift apart.
type Replay struct {
	Units  *Registry
	Groups *ControlGroups
}

// NewReplay creates an empty context.
func NewReplay() *Replay {
	return &Replay{
		Units:  NewRegistry(),
		Groups: NewControlGroups(),
	}
}

// SelectionChange is the outcome of replacing a user's active selection.
type SelectionChange struct {
	// Deselected holds tags that were in the old selection but not the new.
	Deselected []ir.UnitTag
	// Selected holds tags that are in the new selection but were not in the old.
	Selected []ir.UnitTag
	// Missing holds tags in the new selection the registry does not know.
	Missing []ir.UnitTag
}

// Died removes the unit and purges its tag from every control group.
func (r *Replay) Died(tag ir.UnitTag) (UnitRecord, bool) {
	u, ok := r.Units.Died(tag)
	r.Groups.Purge(tag)
	return u, ok
}

// SelectionDelta replaces the user's active selection with tags.
func (r *Replay) SelectionDelta(user ir.UserID, tags []ir.UnitTag) SelectionChange {
	before := r.Groups.ReplaceSelection(user, tags)
	after := r.Groups.Observe(user).Active()
	return r.reselect(before, after)
}

// ControlGroupUpdate applies op to group index for user. Recall swaps the
// active selection and re-marks units; the other ops only edit groups and
// return an empty change.
func (r *Replay) ControlGroupUpdate(user ir.UserID, index int, op ir.ControlGroupOp) (SelectionChange, error) {
	before, after, err := r.Groups.Apply(user, index, op)
	if err != nil {
		return SelectionChange{}, err
	}
	if op != ir.OpRecall {
		return SelectionChange{}, nil
	}
	return r.reselect(before, after), nil
}

// ActiveSelection returns the user's current selection.
func (r *Replay) ActiveSelection(user ir.UserID) []ir.UnitTag {
	p, ok := r.Groups.Player(user)
	if !ok {
		return nil
	}
	return p.Active()
}

// reselect unmarks every tag of before, then marks every tag of after.
// Doing both phases in full keeps units present in both sets selected and
// scaled exactly once.
func (r *Replay) reselect(before, after []ir.UnitTag) SelectionChange {
	var change SelectionChange

	for _, tag := range before {
		if _, err := r.Units.SetSelected(tag, false); err != nil {
			continue
		}
		if !slices.Contains(after, tag) {
			change.Deselected = append(change.Deselected, tag)
		}
	}
	for _, tag := range after {
		if _, err := r.Units.SetSelected(tag, true); err != nil {
			change.Missing = append(change.Missing, tag)
			continue
		}
		if !slices.Contains(before, tag) {
			change.Selected = append(change.Selected, tag)
		}
	}
	return change
}
