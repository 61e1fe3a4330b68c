package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/metrics"
	"github.com/roach88/loopmerge/internal/sink"
	"github.com/roach88/loopmerge/internal/state"
	"github.com/roach88/loopmerge/internal/testutil"
)

func project(t *testing.T, streams ir.Streams, opts ...Option) (*sink.Recorder, *state.Replay, Summary) {
	t.Helper()
	rec := sink.NewRecorder()
	replay := state.NewReplay()
	sum, err := New(rec, opts...).Project(context.Background(), streams, replay)
	require.NoError(t, err)
	return rec, replay, sum
}

func marine(index uint32, owner int64) ir.UnitInit {
	return ir.UnitInit{Tag: testutil.Tag(index, 0), Name: "Marine", Owner: testutil.Player(owner)}
}

func TestEngine_New(t *testing.T) {
	e := New(nil)

	assert.Equal(t, sink.Discard, e.sink)
	assert.NoError(t, e.sink.Emit(context.Background(), ir.Delta{}))
	assert.Equal(t, DefaultTrackerLoopRatio, e.ratio)
	assert.Equal(t, ir.DefaultScale(), e.scale)

	e = New(nil, WithTrackerLoopRatio(-1))
	assert.Equal(t, DefaultTrackerLoopRatio, e.ratio, "non-positive ratio keeps default")
}

func TestEngine_EmptyStreams(t *testing.T) {
	rec, _, sum := project(t, ir.Streams{})

	assert.Zero(t, rec.Len())
	assert.Zero(t, sum.EventsMerged)
	assert.False(t, sum.Truncated)
	assert.Equal(t, ir.NewDigest().Sum(), sum.Digest)
}

func TestEngine_InitThenDiedPurgesGroups(t *testing.T) {
	tag := testutil.Tag(5, 0)
	streams := testutil.NewStreams().
		Tracker(0, marine(5, 1)).
		Tracker(10, ir.UnitDied{Tag: tag}).
		Game(1, 1, ir.SelectionDelta{Tags: []ir.UnitTag{tag}}).
		Game(1, 1, ir.ControlGroupUpdate{GroupIndex: 3, Op: ir.OpSet}).
		Build()

	rec, replay, sum := project(t, streams)

	assert.Equal(t, 0, replay.Units.Len())
	p, ok := replay.Groups.Player(1)
	require.True(t, ok)
	assert.Empty(t, p.Group(3))
	assert.Empty(t, p.Active())

	assert.Equal(t, []ir.DeltaKind{
		ir.DeltaUnitAppeared,
		ir.DeltaUnitSelected,
		ir.DeltaUnitRemoved,
		ir.DeltaDeathMarker,
	}, rec.Kinds())
	assert.Equal(t, 4, sum.EventsAccepted)
	assert.Equal(t, 4, sum.DeltasEmitted)
	assert.Equal(t, int64(7), sum.FinalTrackerLoop)
	assert.Equal(t, int64(2), sum.FinalGameLoop)

	death := rec.Deltas()[3]
	assert.Equal(t, "Death/1310720/7", death.Path)
	assert.Equal(t, 0.07, death.Position.Z)
}

func TestEngine_InitOnlyRegistersOneUnit(t *testing.T) {
	streams := testutil.NewStreams().Tracker(0, marine(5, 1)).Build()

	rec, replay, _ := project(t, streams)

	require.Equal(t, 1, replay.Units.Len())
	u, ok := replay.Units.Get(testutil.Tag(5, 0))
	require.True(t, ok)
	assert.Equal(t, "Marine", u.Name)

	d := rec.Deltas()[0]
	assert.Equal(t, "Unit/1310720/Init", d.Path)
	assert.Equal(t, "Marine", d.Label)
	assert.Equal(t, ir.ColorLightBlue, d.Color)
	require.NotNil(t, d.Player)
	assert.Equal(t, int64(1), *d.Player)
}

func TestEngine_SelectionClearedKeepsGroup(t *testing.T) {
	a, b := testutil.Tag(1, 0), testutil.Tag(2, 0)
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Tracker(0, marine(2, 1)).
		Game(5, 1, ir.SelectionDelta{Tags: []ir.UnitTag{a, b}}).
		Game(1, 1, ir.ControlGroupUpdate{GroupIndex: 3, Op: ir.OpSet}).
		Game(1, 1, ir.SelectionDelta{}).
		Build()

	rec, replay, _ := project(t, streams)

	p, _ := replay.Groups.Player(1)
	assert.Equal(t, []ir.UnitTag{a, b}, p.Group(3))
	assert.Empty(t, p.Active())

	for _, tag := range []ir.UnitTag{a, b} {
		u, _ := replay.Units.Get(tag)
		assert.False(t, u.Selected)
		assert.Equal(t, DefaultUnitRadius, u.Radius, "radius restored")
	}

	assert.Equal(t, []ir.DeltaKind{
		ir.DeltaUnitAppeared,
		ir.DeltaUnitAppeared,
		ir.DeltaUnitSelected,
		ir.DeltaUnitSelected,
		ir.DeltaUnitDeselected,
		ir.DeltaUnitDeselected,
	}, rec.Kinds())
}

func TestEngine_RecallPulses(t *testing.T) {
	a, b := testutil.Tag(1, 0), testutil.Tag(2, 0)
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Tracker(0, marine(2, 1)).
		Game(1, 1, ir.SelectionDelta{Tags: []ir.UnitTag{a}}).
		Game(1, 1, ir.ControlGroupUpdate{GroupIndex: 1, Op: ir.OpSet}).
		Game(1, 1, ir.SelectionDelta{Tags: []ir.UnitTag{b}}).
		Game(1, 1, ir.ControlGroupUpdate{GroupIndex: 1, Op: ir.OpRecall}).
		Build()

	rec, replay, _ := project(t, streams)

	deltas := rec.Deltas()
	last := deltas[len(deltas)-2:]
	assert.Equal(t, ir.DeltaUnitDeselected, last[0].Kind)
	assert.Equal(t, b, *last[0].Tag)
	assert.Equal(t, ir.DeltaUnitSelected, last[1].Kind)
	assert.Equal(t, a, *last[1].Tag)
	assert.Equal(t, 2*DefaultUnitRadius, last[1].Radius)

	assert.Equal(t, []ir.UnitTag{a}, replay.ActiveSelection(1))
}

func TestEngine_InvalidGroupIsSkipped(t *testing.T) {
	m := metrics.New()
	streams := testutil.NewStreams().
		Game(0, 1, ir.ControlGroupUpdate{GroupIndex: 10, Op: ir.OpRecall}).
		Build()

	rec, _, sum := project(t, streams, WithMetrics(m))

	assert.Zero(t, rec.Len())
	assert.Equal(t, 1, sum.EventsAccepted)
}

func TestEngine_RecycledTagsStayDistinct(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, ir.UnitInit{Tag: testutil.Tag(7, 1), Name: "Zergling"}).
		Tracker(0, ir.UnitInit{Tag: testutil.Tag(7, 2), Name: "Zergling"}).
		Tracker(1, ir.UnitDied{Tag: testutil.Tag(7, 1)}).
		Build()

	_, replay, _ := project(t, streams)

	assert.Equal(t, []ir.UnitTag{testutil.Tag(7, 2)}, replay.Units.Tags())
}

func TestEngine_DiedUnknownEmitsOnlyMarker(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, ir.UnitDied{Tag: testutil.Tag(9, 0), X: 60, Y: 120}).
		Build()

	rec, _, _ := project(t, streams)

	require.Equal(t, []ir.DeltaKind{ir.DeltaDeathMarker}, rec.Kinds())
	assert.Equal(t, ir.Vec3{X: 10, Y: -20}, rec.Deltas()[0].Position)
}

func TestEngine_PositionBatch(t *testing.T) {
	tag := testutil.Tag(1, 0)
	streams := testutil.NewStreams().
		Tracker(0, ir.UnitInit{Tag: tag, Name: "Probe", X: 6, Y: 6}).
		Tracker(16, ir.UnitPositions{Items: []ir.UnitPosition{
			{Tag: testutil.Tag(99, 0), X: 1, Y: 1},
			{Tag: tag, X: 48, Y: 24},
		}}).
		Build()

	rec, replay, _ := project(t, streams)

	require.Equal(t, []ir.DeltaKind{ir.DeltaUnitAppeared, ir.DeltaUnitMoved}, rec.Kinds())
	moved := rec.Deltas()[1]
	assert.Equal(t, ir.Vec3{X: 2, Y: -1}, moved.Position)
	require.NotNil(t, moved.Origin)
	assert.Equal(t, ir.Vec3{X: 1, Y: -1}, *moved.Origin)
	assert.Equal(t, 0.5, moved.Radius)

	u, _ := replay.Units.Get(tag)
	assert.Equal(t, ir.Vec3{X: 2, Y: -1}, u.Pos)
	assert.Equal(t, int64(11), u.LastUpdated)
}

func TestEngine_BornAugmentsInit(t *testing.T) {
	tag := testutil.Tag(3, 0)
	streams := testutil.NewStreams().
		Tracker(0, ir.UnitInit{Tag: tag, Name: "Barracks", Owner: testutil.Player(2)}).
		Tracker(100, ir.UnitBorn{Tag: tag, Name: "Barracks", Owner: testutil.Player(2), CreatorAbility: "TerranBuild"}).
		Build()

	rec, replay, _ := project(t, streams)

	assert.Equal(t, 1, replay.Units.Len())
	born := rec.Deltas()[1]
	assert.Equal(t, ir.DeltaUnitConfirmed, born.Kind)
	assert.Equal(t, "TerranBuild>Barracks", born.Label)
	assert.Equal(t, ir.ColorLightGray, born.Color)

	u, _ := replay.Units.Get(tag)
	assert.Equal(t, int64(0), u.CreatedLoop)
	assert.True(t, u.Confirmed)
}

func TestEngine_CmdDrawsArrowPerSelectedUnit(t *testing.T) {
	a, b := testutil.Tag(1, 0), testutil.Tag(2, 0)
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Tracker(0, marine(2, 1)).
		Game(1, 1, ir.SelectionDelta{Tags: []ir.UnitTag{a, b, testutil.Tag(3, 0)}}).
		Game(1, 1, ir.Cmd{Ability: "Attack", TargetPoint: &ir.Vec3{X: 4096, Y: 4096}}).
		Game(1, 2, ir.Cmd{Ability: "Move", TargetPoint: &ir.Vec3{X: 1, Y: 1}}).
		Game(1, 1, ir.Cmd{Ability: "Stop"}).
		Build()

	rec, replay, _ := project(t, streams)

	var arrows []ir.Delta
	for _, d := range rec.Deltas() {
		if d.Kind == ir.DeltaTargetArrow {
			arrows = append(arrows, d)
		}
	}
	require.Len(t, arrows, 2, "user 2 has no selection; Stop has no target")
	for _, d := range arrows {
		assert.Equal(t, ir.Vec3{X: 1, Y: -1}, d.Position)
		assert.Equal(t, "Attack", d.Label)
		require.NotNil(t, d.Origin)
	}

	u, _ := replay.Units.Get(a)
	require.NotNil(t, u.Target)
	assert.Equal(t, ir.Vec3{X: 1, Y: -1}, *u.Target)
}

func TestEngine_CmdTargetUnitUsesLivePosition(t *testing.T) {
	a, enemy := testutil.Tag(1, 0), testutil.Tag(2, 0)
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Tracker(0, ir.UnitInit{Tag: enemy, Name: "Zealot", X: 60, Y: 60}).
		Game(1, 1, ir.SelectionDelta{Tags: []ir.UnitTag{a}}).
		Game(1, 1, ir.CmdUpdateTargetUnit{Target: ir.TargetUnit{Tag: enemy, SnapshotPoint: ir.Vec3{X: 4096}}}).
		Build()

	rec, _, _ := project(t, streams)

	deltas := rec.Deltas()
	arrow := deltas[len(deltas)-1]
	assert.Equal(t, ir.DeltaTargetArrow, arrow.Kind)
	assert.Equal(t, ir.Vec3{X: 10, Y: -10}, arrow.Position)
	assert.Empty(t, arrow.Label)
}

func TestEngine_CameraUpdate(t *testing.T) {
	streams := testutil.NewStreams().
		Game(0, 2, ir.CameraUpdate{Target: &ir.Vec3{X: 3000, Y: 1500}}).
		Game(1, 2, ir.CameraUpdate{}).
		Build()

	rec, _, _ := project(t, streams)

	require.Equal(t, 1, rec.Len())
	d := rec.Deltas()[0]
	assert.Equal(t, "Camera/2", d.Path)
	assert.Equal(t, ir.Vec3{X: 2, Y: -1}, d.Position)
	assert.Equal(t, ir.ColorLightGray, d.Color)
}

func TestEngine_StatsGated(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, ir.PlayerStats{PlayerID: 1, Stats: []ir.Stat{
			{Name: "minerals_current", Value: 50},
			{Name: "food_used", Value: 12},
		}}).
		Build()

	rec, _, _ := project(t, streams)
	assert.Zero(t, rec.Len())

	rec, _, _ = project(t, streams, WithIncludeStats(true))
	require.Equal(t, 2, rec.Len())
	d := rec.Deltas()[0]
	assert.Equal(t, "MineralsCurrent/1", d.Path)
	require.NotNil(t, d.Value)
	assert.Equal(t, 50.0, *d.Value)
}

func TestEngine_PlayerSetupCreatesGroups(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, ir.PlayerSetup{PlayerID: 1, UserID: 4, Type: "Human"}).
		Build()

	rec, replay, _ := project(t, streams)

	assert.Zero(t, rec.Len())
	assert.Equal(t, []ir.UserID{4}, replay.Groups.Users())
}

func TestEngine_MaxEventsShortCircuits(t *testing.T) {
	b := testutil.NewStreams()
	for i := uint32(0); i < 20; i++ {
		b.Tracker(1, marine(i, 1))
		b.Game(1, 1, ir.CameraUpdate{Target: &ir.Vec3{X: 1500, Y: 1500}})
	}
	streams := b.Build()

	for _, n := range []int{1, 7, 40, 100} {
		rec, _, sum := project(t, streams, WithMaxEvents(n, 0, 0))
		want := min(n, 40)
		assert.Equal(t, want, sum.EventsAccepted, "n=%d", n)
		assert.Equal(t, want, rec.Len(), "one delta per event, n=%d", n)
		assert.Equal(t, n < 40, sum.Truncated, "n=%d", n)
	}
}

func TestEngine_PerStreamBudget(t *testing.T) {
	b := testutil.NewStreams()
	for i := uint32(0); i < 5; i++ {
		b.Tracker(1, marine(i, 1))
		b.Game(1, 1, ir.CameraUpdate{Target: &ir.Vec3{}})
	}

	_, replay, sum := project(t, b.Build(), WithMaxEvents(0, 2, 0))

	assert.Equal(t, 2, replay.Units.Len())
	assert.Equal(t, 7, sum.EventsAccepted)
	assert.True(t, sum.Truncated)
}

func TestEngine_MaxLoopStopsPass(t *testing.T) {
	streams := testutil.NewStreams().
		Game(10, 1, ir.CameraUpdate{Target: &ir.Vec3{}}).
		Game(10, 1, ir.CameraUpdate{Target: &ir.Vec3{}}).
		Game(10, 1, ir.CameraUpdate{Target: &ir.Vec3{}}).
		Build()

	maxLoop := int64(20)
	rec, _, sum := project(t, streams, WithFilters(Filters{MaxLoop: &maxLoop}))

	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, 3, sum.EventsMerged)
	assert.True(t, sum.Truncated)
}

func TestEngine_EventClassSkipsStream(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Game(0, 1, ir.CameraUpdate{Target: &ir.Vec3{}}).
		Build()

	rec, replay, sum := project(t, streams, WithFilters(Filters{Class: ir.EventClassGame}))

	assert.Equal(t, 1, sum.EventsMerged)
	assert.Equal(t, 0, replay.Units.Len())
	assert.Equal(t, []ir.DeltaKind{ir.DeltaCameraMoved}, rec.Kinds())
}

func TestEngine_SinkFailureAborts(t *testing.T) {
	boom := errors.New("renderer gone")
	calls := 0
	failing := sink.Func(func(context.Context, ir.Delta) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})

	b := testutil.NewStreams()
	for i := uint32(0); i < 5; i++ {
		b.Tracker(1, marine(i, 1))
	}

	replay := state.NewReplay()
	sum, err := New(failing).Project(context.Background(), b.Build(), replay)

	require.Error(t, err)
	assert.True(t, IsSinkError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, sum.DeltasEmitted)
	assert.Equal(t, 3, sum.EventsAccepted)
	assert.Equal(t, 3, replay.Units.Len(), "state applied before the failure is kept")
}

func TestEngine_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	streams := testutil.NewStreams().Tracker(0, marine(1, 1)).Build()
	_, err := New(nil).Run(ctx, streams)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_DeterministicDigest(t *testing.T) {
	build := func(x float64) ir.Streams {
		return testutil.NewStreams().
			Tracker(0, marine(1, 1)).
			Tracker(16, ir.UnitPositions{Items: []ir.UnitPosition{{Tag: testutil.Tag(1, 0), X: x, Y: 24}}}).
			Game(3, 1, ir.SelectionDelta{Tags: testutil.Tags(1)}).
			Build()
	}

	_, _, first := project(t, build(24))
	_, _, second := project(t, build(24))
	_, _, other := project(t, build(48))

	assert.Equal(t, first.Digest, second.Digest)
	assert.NotEqual(t, first.Digest, other.Digest)
}

func TestEngine_SeqStrictlyIncreasing(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, marine(1, 1)).
		Tracker(0, marine(2, 1)).
		Tracker(5, ir.UnitDied{Tag: testutil.Tag(1, 0)}).
		Game(1, 1, ir.SelectionDelta{Tags: testutil.Tags(1, 2)}).
		Build()

	rec, _, _ := project(t, streams)

	var prevSeq, prevLoop int64
	for _, d := range rec.Deltas() {
		assert.Greater(t, d.Seq, prevSeq)
		assert.GreaterOrEqual(t, d.Loop, prevLoop)
		prevSeq, prevLoop = d.Seq, d.Loop
	}
}

func TestEngine_UnknownEventsIgnored(t *testing.T) {
	streams := testutil.NewStreams().
		Tracker(0, ir.UnknownTracker{Kind: "Upgrade"}).
		Game(0, 1, ir.UnknownGame{Kind: "Chat"}).
		Build()

	rec, _, sum := project(t, streams)

	assert.Zero(t, rec.Len())
	assert.Equal(t, 2, sum.EventsAccepted)
}
