package ir

// TrackerEvent is one entry of the tracker stream.
// Delta is the loop advance since the previous tracker event.
type TrackerEvent struct {
	Delta   uint32
	Payload TrackerPayload
}

// GameEvent is one entry of the game stream.
// Delta is the loop advance since the previous game event.
type GameEvent struct {
	Delta   uint32
	UserID  UserID
	Payload GamePayload
}

// Streams holds both pre-decoded input streams for one match.
type Streams struct {
	Tracker []TrackerEvent
	Game    []GameEvent
}

// TrackerPayload is the closed set of tracker event kinds.
// The unexported marker method keeps the set closed to this package;
// consumers switch over the concrete types.
type TrackerPayload interface {
	TrackerKind() string
	isTrackerPayload()
}

// GamePayload is the closed set of game event kinds.
type GamePayload interface {
	GameKind() string
	isGamePayload()
}

// UnitInit starts construction of a unit (buildings, morphs).
type UnitInit struct {
	Tag   UnitTag
	Name  string
	Owner *PlayerID
	X, Y  float64
}

// UnitBorn announces a unit that exists on the map.
type UnitBorn struct {
	Tag            UnitTag
	Name           string
	Owner          *PlayerID
	X, Y           float64
	CreatorAbility string
	CreatorTag     *UnitTag
}

// UnitDied removes a unit.
type UnitDied struct {
	Tag          UnitTag
	X, Y         float64
	KillerTag    *UnitTag
	KillerPlayer *PlayerID
}

// UnitPosition is one entry of a position batch.
type UnitPosition struct {
	Tag  UnitTag
	X, Y float64
}

// UnitPositions is a batch of position samples taken at the same loop.
type UnitPositions struct {
	Items []UnitPosition
}

// Stat is one named numeric value of a PlayerStats sample.
type Stat struct {
	Name  string
	Value float64
}

// PlayerStats is an economy sample. Stats keep their source order.
type PlayerStats struct {
	PlayerID PlayerID
	Stats    []Stat
}

// PlayerSetup binds a tracker player slot to a game user.
type PlayerSetup struct {
	PlayerID PlayerID
	UserID   UserID
	Type     string
}

// UnknownTracker is a tracker kind the core does not project.
type UnknownTracker struct {
	Kind string
}

func (UnitInit) TrackerKind() string      { return "UnitInit" }
func (UnitBorn) TrackerKind() string      { return "UnitBorn" }
func (UnitDied) TrackerKind() string      { return "UnitDied" }
func (UnitPositions) TrackerKind() string { return "UnitPosition" }
func (PlayerStats) TrackerKind() string   { return "PlayerStats" }
func (PlayerSetup) TrackerKind() string   { return "PlayerSetup" }

// TrackerKind returns the source kind name.
func (u UnknownTracker) TrackerKind() string { return u.Kind }

func (UnitInit) isTrackerPayload()       {}
func (UnitBorn) isTrackerPayload()       {}
func (UnitDied) isTrackerPayload()       {}
func (UnitPositions) isTrackerPayload()  {}
func (PlayerStats) isTrackerPayload()    {}
func (PlayerSetup) isTrackerPayload()    {}
func (UnknownTracker) isTrackerPayload() {}

// TargetUnit is the snapshot of a unit targeted by a command.
type TargetUnit struct {
	Tag           UnitTag
	Owner         *PlayerID
	SnapshotPoint Vec3
}

// CameraUpdate moves a user's camera. Target is nil when the camera
// did not move to a map point.
type CameraUpdate struct {
	Target *Vec3
}

// Cmd is an issued command. At most one of TargetPoint and TargetUnit is set;
// neither is set for untargeted commands.
type Cmd struct {
	Ability     string
	TargetPoint *Vec3
	TargetUnit  *TargetUnit
}

// CmdUpdateTargetPoint retargets the running command to a point.
type CmdUpdateTargetPoint struct {
	Target Vec3
}

// CmdUpdateTargetUnit retargets the running command to a unit.
type CmdUpdateTargetUnit struct {
	Target TargetUnit
}

// SelectionDelta replaces the user's active selection with Tags.
type SelectionDelta struct {
	Tags []UnitTag
}

// ControlGroupOp is one of the six control-group update operations.
type ControlGroupOp int

const (
	OpSet ControlGroupOp = iota
	OpSetAndSteal
	OpClear
	OpAppend
	OpAppendAndSteal
	OpRecall
)

var controlGroupOpNames = [...]string{
	OpSet:            "Set",
	OpSetAndSteal:    "SetAndSteal",
	OpClear:          "Clear",
	OpAppend:         "Append",
	OpAppendAndSteal: "AppendAndSteal",
	OpRecall:         "Recall",
}

// String returns the operation name as it appears in source documents.
func (op ControlGroupOp) String() string {
	if op < 0 || int(op) >= len(controlGroupOpNames) {
		return "Unknown"
	}
	return controlGroupOpNames[op]
}

// ParseControlGroupOp maps an operation name back to its value.
func ParseControlGroupOp(name string) (ControlGroupOp, bool) {
	for i, n := range controlGroupOpNames {
		if n == name {
			return ControlGroupOp(i), true
		}
	}
	return 0, false
}

// ControlGroupUpdate applies Op to control group GroupIndex.
type ControlGroupUpdate struct {
	GroupIndex int
	Op         ControlGroupOp
}

// UnknownGame is a game kind the core does not project.
type UnknownGame struct {
	Kind string
}

func (CameraUpdate) GameKind() string         { return "CameraUpdate" }
func (Cmd) GameKind() string                  { return "Cmd" }
func (CmdUpdateTargetPoint) GameKind() string { return "CmdUpdateTargetPoint" }
func (CmdUpdateTargetUnit) GameKind() string  { return "CmdUpdateTargetUnit" }
func (SelectionDelta) GameKind() string       { return "SelectionDelta" }
func (ControlGroupUpdate) GameKind() string   { return "ControlGroupUpdate" }

// GameKind returns the source kind name.
func (u UnknownGame) GameKind() string { return u.Kind }

func (CameraUpdate) isGamePayload()         {}
func (Cmd) isGamePayload()                  {}
func (CmdUpdateTargetPoint) isGamePayload() {}
func (CmdUpdateTargetUnit) isGamePayload()  {}
func (SelectionDelta) isGamePayload()       {}
func (ControlGroupUpdate) isGamePayload()   {}
func (UnknownGame) isGamePayload()          {}
