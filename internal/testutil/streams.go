package testutil

import "github.com/roach88/loopmerge/internal/ir"

// StreamBuilder assembles delta-encoded streams for tests.
//
//	streams := testutil.NewStreams().
//		Tracker(0, ir.UnitInit{Tag: testutil.Tag(5, 0), Name: "Marine"}).
//		Game(3, 1, ir.SelectionDelta{Tags: []ir.UnitTag{testutil.Tag(5, 0)}}).
//		Build()
type StreamBuilder struct {
	streams ir.Streams
}

// NewStreams starts an empty builder.
func NewStreams() *StreamBuilder {
	return &StreamBuilder{}
}

// Tracker appends a tracker event delta loops after the previous one.
func (b *StreamBuilder) Tracker(delta uint32, p ir.TrackerPayload) *StreamBuilder {
	b.streams.Tracker = append(b.streams.Tracker, ir.TrackerEvent{Delta: delta, Payload: p})
	return b
}

// Game appends a game event for user delta loops after the previous one.
func (b *StreamBuilder) Game(delta uint32, user ir.UserID, p ir.GamePayload) *StreamBuilder {
	b.streams.Game = append(b.streams.Game, ir.GameEvent{Delta: delta, UserID: user, Payload: p})
	return b
}

// Build returns the streams.
func (b *StreamBuilder) Build() ir.Streams {
	return b.streams
}

// Tag builds a unit tag.
func Tag(index, recycle uint32) ir.UnitTag {
	return ir.NewUnitTag(index, recycle)
}

// Tags builds tags with recycle 0.
func Tags(indices ...uint32) []ir.UnitTag {
	out := make([]ir.UnitTag, len(indices))
	for i, idx := range indices {
		out[i] = ir.NewUnitTag(idx, 0)
	}
	return out
}

// Player returns a pointer to a player id.
func Player(id int64) *ir.PlayerID {
	p := ir.PlayerID(id)
	return &p
}

// Point returns a pointer to a map point.
func Point(x, y float64) *ir.Vec3 {
	return &ir.Vec3{X: x, Y: y}
}
