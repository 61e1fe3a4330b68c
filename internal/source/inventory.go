package source

import (
	"slices"

	"github.com/roach88/loopmerge/internal/ir"
)

// Inventory summarizes decoded streams without projecting them.
type Inventory struct {
	TrackerEvents int            `json:"tracker_events"`
	GameEvents    int            `json:"game_events"`
	TrackerLoops  int64          `json:"tracker_loops"`
	GameLoops     int64          `json:"game_loops"`
	Kinds         map[string]int `json:"kinds"`
	Users         []ir.UserID    `json:"users"`
	Units         int            `json:"units"`
}

// Take builds an inventory. Loops are the raw, unadjusted stream totals.
// Units counts distinct tags introduced by UnitInit or UnitBorn.
func Take(streams ir.Streams) Inventory {
	inv := Inventory{
		TrackerEvents: len(streams.Tracker),
		GameEvents:    len(streams.Game),
		Kinds:         make(map[string]int),
		Users:         []ir.UserID{},
	}

	units := make(map[ir.UnitTag]struct{})
	for _, ev := range streams.Tracker {
		inv.TrackerLoops += int64(ev.Delta)
		inv.Kinds[ev.Payload.TrackerKind()]++
		switch p := ev.Payload.(type) {
		case ir.UnitInit:
			units[p.Tag] = struct{}{}
		case ir.UnitBorn:
			units[p.Tag] = struct{}{}
		}
	}
	for _, ev := range streams.Game {
		inv.GameLoops += int64(ev.Delta)
		inv.Kinds[ev.Payload.GameKind()]++
		if !slices.Contains(inv.Users, ev.UserID) {
			inv.Users = append(inv.Users, ev.UserID)
		}
	}
	slices.Sort(inv.Users)
	inv.Units = len(units)
	return inv
}
