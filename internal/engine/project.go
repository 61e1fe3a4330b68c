package engine

import (
	"context"
	"log/slog"

	"golang.org/x/text/cases"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/metrics"
	"github.com/roach88/loopmerge/internal/sink"
	"github.com/roach88/loopmerge/internal/state"
)

// projector applies accepted steps to the replay state and emits deltas.
//
// It owns the Replay context for the duration of one run. Within one step,
// every state mutation happens before the deltas describing it are emitted.
type projector struct {
	replay       *state.Replay
	scale        ir.Scale
	includeStats bool
	sink         sink.Sink
	clock        *Clock
	digest       *ir.Digest
	metrics      *metrics.Collector
	caser        cases.Caser
	emitted      int
}

func newProjector(replay *state.Replay, s sink.Sink, scale ir.Scale, includeStats bool, m *metrics.Collector) *projector {
	return &projector{
		replay:       replay,
		scale:        scale,
		includeStats: includeStats,
		sink:         s,
		clock:        NewClock(),
		digest:       ir.NewDigest(),
		metrics:      m,
		caser:        newStatCaser(),
	}
}

// apply dispatches one step. Only sink failures are returned.
func (p *projector) apply(ctx context.Context, step Step) error {
	switch {
	case step.Tracker != nil:
		return p.applyTracker(ctx, step, step.Tracker.Payload)
	case step.Game != nil:
		return p.applyGame(ctx, step, step.Game.UserID, step.Game.Payload)
	}
	return nil
}

func (p *projector) applyTracker(ctx context.Context, step Step, payload ir.TrackerPayload) error {
	switch ev := payload.(type) {
	case ir.UnitInit:
		return p.unitInit(ctx, step, ev)
	case ir.UnitBorn:
		return p.unitBorn(ctx, step, ev)
	case ir.UnitDied:
		return p.unitDied(ctx, step, ev)
	case ir.UnitPositions:
		return p.unitPositions(ctx, step, ev)
	case ir.PlayerStats:
		return p.playerStats(ctx, step, ev)
	case ir.PlayerSetup:
		p.replay.Groups.Observe(ev.UserID)
		return nil
	case ir.UnknownTracker:
		p.anomaly(step, ErrCodeUnknownEvent, nil, "ignored tracker event", "kind", ev.Kind)
		return nil
	}
	return nil
}

func (p *projector) applyGame(ctx context.Context, step Step, user ir.UserID, payload ir.GamePayload) error {
	switch ev := payload.(type) {
	case ir.CameraUpdate:
		return p.cameraUpdate(ctx, step, user, ev)
	case ir.Cmd:
		target, ok := p.resolveTarget(ev.TargetPoint, ev.TargetUnit)
		if !ok {
			return nil
		}
		return p.targetArrows(ctx, step, user, target, ev.Ability)
	case ir.CmdUpdateTargetPoint:
		target, _ := p.resolveTarget(&ev.Target, nil)
		return p.targetArrows(ctx, step, user, target, "")
	case ir.CmdUpdateTargetUnit:
		target, _ := p.resolveTarget(nil, &ev.Target)
		return p.targetArrows(ctx, step, user, target, "")
	case ir.SelectionDelta:
		change := p.replay.SelectionDelta(user, ev.Tags)
		return p.selectionChanged(ctx, step, user, change)
	case ir.ControlGroupUpdate:
		change, err := p.replay.ControlGroupUpdate(user, ev.GroupIndex, ev.Op)
		if err != nil {
			p.anomaly(step, ErrCodeInvalidControlGroup, nil, "control group update skipped",
				"user", int64(user), "group", ev.GroupIndex, "op", ev.Op.String())
			return nil
		}
		return p.selectionChanged(ctx, step, user, change)
	case ir.UnknownGame:
		p.anomaly(step, ErrCodeUnknownEvent, nil, "ignored game event", "kind", ev.Kind)
		return nil
	}
	return nil
}

func (p *projector) unitInit(ctx context.Context, step Step, ev ir.UnitInit) error {
	radius, color := UnitStyle(ev.Name, ev.Owner)
	u, created := p.replay.Units.InitOrRegister(state.UnitSpec{
		Tag:    ev.Tag,
		Name:   ev.Name,
		Owner:  ev.Owner,
		Pos:    p.scale.Unit(ev.X, ev.Y),
		Radius: radius,
		Color:  color,
	}, step.Loop)
	if !created {
		p.metrics.Anomaly(string(ErrCodeUnitReinitialized))
	}
	p.metrics.SetLiveUnits(p.replay.Units.Len())

	return p.emit(ctx, step, ir.Delta{
		Kind:     ir.DeltaUnitAppeared,
		Path:     unitPath(u.Tag, "Init"),
		Tag:      tagPtr(u.Tag),
		Player:   playerPtr(u.Owner),
		Position: u.Pos,
		Color:    u.Color,
		Radius:   u.Radius,
		Label:    u.Name,
	})
}

func (p *projector) unitBorn(ctx context.Context, step Step, ev ir.UnitBorn) error {
	radius, color := UnitStyle(ev.Name, ev.Owner)
	u, _ := p.replay.Units.Born(state.UnitSpec{
		Tag:            ev.Tag,
		Name:           ev.Name,
		Owner:          ev.Owner,
		Pos:            p.scale.Unit(ev.X, ev.Y),
		Radius:         radius,
		Color:          color,
		CreatorAbility: ev.CreatorAbility,
	}, step.Loop)
	p.metrics.SetLiveUnits(p.replay.Units.Len())

	return p.emit(ctx, step, ir.Delta{
		Kind:     ir.DeltaUnitConfirmed,
		Path:     unitPath(u.Tag, "Born"),
		Tag:      tagPtr(u.Tag),
		Player:   playerPtr(u.Owner),
		Position: u.Pos,
		Color:    u.Color,
		Radius:   u.Radius,
		Label:    CreatorLabel(u.CreatorAbility, u.Name),
	})
}

func (p *projector) unitDied(ctx context.Context, step Step, ev ir.UnitDied) error {
	u, ok := p.replay.Died(ev.Tag)
	p.metrics.SetLiveUnits(p.replay.Units.Len())

	if ok {
		err := p.emit(ctx, step, ir.Delta{
			Kind:     ir.DeltaUnitRemoved,
			Path:     unitPath(u.Tag, "Died"),
			Tag:      tagPtr(u.Tag),
			Player:   playerPtr(u.Owner),
			Position: u.Pos,
			Label:    u.Name,
		})
		if err != nil {
			return err
		}
	} else {
		slog.Debug("died for unregistered unit",
			"tag", ev.Tag.String(),
			"loop", step.Loop,
		)
	}

	marker := p.scale.Unit(ev.X, ev.Y)
	marker.Z = p.scale.DeathZ(step.Loop)
	return p.emit(ctx, step, ir.Delta{
		Kind:     ir.DeltaDeathMarker,
		Path:     deathPath(ev.Tag, step.Loop),
		Tag:      tagPtr(ev.Tag),
		Player:   playerPtr(ev.KillerPlayer),
		Position: marker,
		Color:    ir.ColorDarkRed,
		Radius:   DeathMarkerRadius,
	})
}

func (p *projector) unitPositions(ctx context.Context, step Step, ev ir.UnitPositions) error {
	for _, item := range ev.Items {
		pos := p.scale.Position(item.X, item.Y)
		old, err := p.replay.Units.PositionUpdate(item.Tag, pos, step.Loop)
		if err != nil {
			p.anomaly(step, ErrCodeUnitNotRegistered, &item.Tag, "position for unregistered unit")
			continue
		}
		u, _ := p.replay.Units.Get(item.Tag)
		origin := old
		if err := p.emit(ctx, step, ir.Delta{
			Kind:     ir.DeltaUnitMoved,
			Path:     unitPath(item.Tag, "Position"),
			Tag:      tagPtr(item.Tag),
			Player:   playerPtr(u.Owner),
			Position: pos,
			Origin:   &origin,
			Color:    u.Color,
			Radius:   u.Radius,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *projector) playerStats(ctx context.Context, step Step, ev ir.PlayerStats) error {
	if !p.includeStats {
		return nil
	}
	player := int64(ev.PlayerID)
	for _, stat := range ev.Stats {
		value := stat.Value
		if err := p.emit(ctx, step, ir.Delta{
			Kind:   ir.DeltaStatPoint,
			Path:   StatPath(p.caser, stat.Name, ev.PlayerID),
			Player: &player,
			Color:  UserColor(player),
			Label:  stat.Name,
			Value:  &value,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *projector) cameraUpdate(ctx context.Context, step Step, user ir.UserID, ev ir.CameraUpdate) error {
	if ev.Target == nil {
		return nil
	}
	id := int64(user)
	return p.emit(ctx, step, ir.Delta{
		Kind:     ir.DeltaCameraMoved,
		Path:     cameraPath(user),
		Player:   &id,
		Position: p.scale.Camera(*ev.Target),
		Color:    UserColor(id),
		Radius:   CameraRadius,
	})
}

// resolveTarget prefers an explicit point, then the live position of the
// targeted unit, then the unit's snapshot position from the command.
func (p *projector) resolveTarget(point *ir.Vec3, unit *ir.TargetUnit) (ir.Vec3, bool) {
	if point != nil {
		return p.scale.Target(*point), true
	}
	if unit != nil {
		if u, ok := p.replay.Units.Get(unit.Tag); ok {
			return u.Pos, true
		}
		return p.scale.Target(unit.SnapshotPoint), true
	}
	return ir.Vec3{}, false
}

// targetArrows draws one arrow from each selected unit of user to target.
func (p *projector) targetArrows(ctx context.Context, step Step, user ir.UserID, target ir.Vec3, label string) error {
	for _, tag := range p.replay.ActiveSelection(user) {
		u, ok := p.replay.Units.Get(tag)
		if !ok {
			p.anomaly(step, ErrCodeUnitNotRegistered, &tag, "selected unit missing for command")
			continue
		}
		if err := p.replay.Units.SetTarget(tag, target, step.Loop); err != nil {
			continue
		}
		origin := u.Pos
		id := int64(user)
		if err := p.emit(ctx, step, ir.Delta{
			Kind:     ir.DeltaTargetArrow,
			Path:     unitPath(tag, "Target"),
			Tag:      tagPtr(tag),
			Player:   &id,
			Position: target,
			Origin:   &origin,
			Color:    ir.ColorLightGray,
			Radius:   TargetArrowRadius,
			Label:    label,
		}); err != nil {
			return err
		}
	}
	return nil
}

// selectionChanged emits deselections first, then selections, matching the
// unmark-then-mark order the state already applied.
func (p *projector) selectionChanged(ctx context.Context, step Step, user ir.UserID, change state.SelectionChange) error {
	for i := range change.Missing {
		p.anomaly(step, ErrCodeUnitNotRegistered, &change.Missing[i], "selected unit not registered",
			"user", int64(user))
	}
	for _, tag := range change.Deselected {
		if err := p.emitSelection(ctx, step, user, tag, ir.DeltaUnitDeselected, "Deselected"); err != nil {
			return err
		}
	}
	for _, tag := range change.Selected {
		if err := p.emitSelection(ctx, step, user, tag, ir.DeltaUnitSelected, "Selected"); err != nil {
			return err
		}
	}
	return nil
}

func (p *projector) emitSelection(ctx context.Context, step Step, user ir.UserID, tag ir.UnitTag, kind ir.DeltaKind, phase string) error {
	u, ok := p.replay.Units.Get(tag)
	if !ok {
		return nil
	}
	id := int64(user)
	return p.emit(ctx, step, ir.Delta{
		Kind:     kind,
		Path:     unitPath(tag, phase),
		Tag:      tagPtr(tag),
		Player:   &id,
		Position: u.Pos,
		Color:    u.Color,
		Radius:   u.Radius,
	})
}

// emit stamps d and hands it to the sink.
func (p *projector) emit(ctx context.Context, step Step, d ir.Delta) error {
	d.Seq = p.clock.Current() + 1
	d.Loop = step.Loop

	id, err := ir.DeltaID(d)
	if err != nil {
		// Non-finite coordinates in the source; the delta cannot be hashed
		// or rendered.
		slog.Warn("dropping unencodable delta",
			"path", d.Path,
			"loop", d.Loop,
			"error", err,
		)
		return nil
	}

	p.clock.Next()
	if err := p.sink.Emit(ctx, d); err != nil {
		return NewSinkError(step, d, err)
	}
	p.digest.Add(id)
	p.emitted++
	p.metrics.DeltaEmitted(string(d.Kind))
	return nil
}

// anomaly logs and counts a benign inconsistency.
func (p *projector) anomaly(step Step, code RuntimeErrorCode, tag *ir.UnitTag, msg string, args ...any) {
	attrs := []any{
		"code", string(code),
		"loop", step.Loop,
		"stream", step.Stream.String(),
	}
	if tag != nil {
		attrs = append(attrs, "tag", tag.String())
	}
	attrs = append(attrs, args...)
	slog.Debug(msg, attrs...)
	p.metrics.Anomaly(string(code))
}

func tagPtr(tag ir.UnitTag) *ir.UnitTag {
	return &tag
}

func playerPtr(owner *ir.PlayerID) *int64 {
	if owner == nil {
		return nil
	}
	id := int64(*owner)
	return &id
}
