package engine

import (
	"github.com/roach88/loopmerge/internal/ir"
)

// Filters is an immutable predicate set applied to every merged step.
// All filters compose by logical AND; a nil or empty field is unbounded.
type Filters struct {
	// UserID keeps only game events from this user. Tracker events pass.
	UserID *ir.UserID

	// UnitTag keeps only unit lifecycle events for this tag. A position
	// batch passes if any of its items matches.
	UnitTag *ir.UnitTag

	// UnitName keeps only Init/Born events whose unit name matches.
	UnitName string

	// MinLoop and MaxLoop bound the adjusted loop, inclusive.
	MinLoop *int64
	MaxLoop *int64

	// Class restricts the run to one stream. The scheduler drops the other
	// stream before merging; Accept repeats the check for callers that
	// drive their own steps.
	Class ir.EventClass
}

// Accept reports whether step may reach the projection.
func (f Filters) Accept(step Step) bool {
	if !f.Class.Includes(step.Stream) {
		return false
	}
	if f.MinLoop != nil && step.Loop < *f.MinLoop {
		return false
	}
	if f.MaxLoop != nil && step.Loop > *f.MaxLoop {
		return false
	}
	if step.Game != nil {
		return f.acceptGame(step.Game)
	}
	if step.Tracker != nil {
		return f.acceptTracker(step.Tracker)
	}
	return false
}

// PastEnd reports whether no step at or after this one can pass the loop
// range. Merged loops never decrease, so the pass may stop here.
func (f Filters) PastEnd(step Step) bool {
	return f.MaxLoop != nil && step.Loop > *f.MaxLoop
}

func (f Filters) acceptGame(ev *ir.GameEvent) bool {
	if f.UserID != nil && ev.UserID != *f.UserID {
		return false
	}
	return true
}

func (f Filters) acceptTracker(ev *ir.TrackerEvent) bool {
	switch p := ev.Payload.(type) {
	case ir.UnitInit:
		return f.matchTag(p.Tag) && f.matchName(p.Name)
	case ir.UnitBorn:
		return f.matchTag(p.Tag) && f.matchName(p.Name)
	case ir.UnitDied:
		return f.matchTag(p.Tag)
	case ir.UnitPositions:
		if f.UnitTag == nil {
			return true
		}
		for _, item := range p.Items {
			if item.Tag == *f.UnitTag {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (f Filters) matchTag(tag ir.UnitTag) bool {
	return f.UnitTag == nil || *f.UnitTag == tag
}

func (f Filters) matchName(name string) bool {
	return f.UnitName == "" || f.UnitName == name
}
