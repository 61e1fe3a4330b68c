package engine

import (
	"math"

	"github.com/roach88/loopmerge/internal/ir"
)

// PriorityBase spaces merge keys so the stream priority fits below one loop.
// Must exceed the number of streams.
const PriorityBase = 10

// DefaultTrackerLoopRatio converts tracker loops to game loops.
//
// Fitted empirically against captured matches; different game versions
// need different values, so it is configuration, not a constant of nature.
const DefaultTrackerLoopRatio = 0.70996

// Step is one event in merged order.
type Step struct {
	Stream ir.Stream

	// RawLoop is the running sum of deltas within the event's own stream.
	RawLoop int64

	// Loop is the adjusted loop on the game-loop scale. Tracker loops are
	// rescaled exactly once, here; everything downstream sees this value.
	Loop int64

	// Key is Loop*PriorityBase + stream priority.
	Key int64

	// Index is the event's position within its stream.
	Index int

	// Exactly one of Tracker and Game is set.
	Tracker *ir.TrackerEvent
	Game    *ir.GameEvent
}

// SchedulerOptions configure a Scheduler.
type SchedulerOptions struct {
	// TrackerLoopRatio rescales tracker loops. Zero means DefaultTrackerLoopRatio.
	TrackerLoopRatio float64

	// Class drops the excluded stream before merging.
	Class ir.EventClass
}

// Scheduler merges the tracker and game streams into one order.
//
// It is a streaming two-way merge: each stream is read once, front to back,
// and only the head of each is inspected. Ties on adjusted loop go to the
// tracker stream (lower priority), then to original stream order.
type Scheduler struct {
	tracker []ir.TrackerEvent
	game    []ir.GameEvent
	ratio   float64

	ti, gi              int
	trackerRaw, gameRaw int64
	lastTracker         int64
	lastGame            int64
}

// NewScheduler creates a scheduler over streams. The slices are read, never
// mutated.
func NewScheduler(streams ir.Streams, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		tracker: streams.Tracker,
		game:    streams.Game,
		ratio:   opts.TrackerLoopRatio,
	}
	if s.ratio <= 0 {
		s.ratio = DefaultTrackerLoopRatio
	}
	if !opts.Class.Includes(ir.StreamTracker) {
		s.tracker = nil
	}
	if !opts.Class.Includes(ir.StreamGame) {
		s.game = nil
	}
	return s
}

// AdjustTrackerLoop converts a raw tracker loop to the game-loop scale.
func AdjustTrackerLoop(raw int64, ratio float64) int64 {
	return int64(math.Floor(float64(raw) * ratio))
}

// MergeKey builds the sort key for an event at loop from stream s.
func MergeKey(loop int64, s ir.Stream) int64 {
	return loop*PriorityBase + s.Priority()
}

func (s *Scheduler) peekTracker() (Step, bool) {
	if s.ti >= len(s.tracker) {
		return Step{}, false
	}
	ev := &s.tracker[s.ti]
	raw := s.trackerRaw + int64(ev.Delta)
	loop := AdjustTrackerLoop(raw, s.ratio)
	return Step{
		Stream:  ir.StreamTracker,
		RawLoop: raw,
		Loop:    loop,
		Key:     MergeKey(loop, ir.StreamTracker),
		Index:   s.ti,
		Tracker: ev,
	}, true
}

func (s *Scheduler) peekGame() (Step, bool) {
	if s.gi >= len(s.game) {
		return Step{}, false
	}
	ev := &s.game[s.gi]
	raw := s.gameRaw + int64(ev.Delta)
	return Step{
		Stream:  ir.StreamGame,
		RawLoop: raw,
		Loop:    raw,
		Key:     MergeKey(raw, ir.StreamGame),
		Index:   s.gi,
		Game:    ev,
	}, true
}

// Next returns the next event in merged order, or false when both streams
// are exhausted.
func (s *Scheduler) Next() (Step, bool) {
	t, tok := s.peekTracker()
	g, gok := s.peekGame()

	switch {
	case !tok && !gok:
		return Step{}, false
	case tok && (!gok || t.Key <= g.Key):
		s.ti++
		s.trackerRaw = t.RawLoop
		s.lastTracker = t.Loop
		return t, true
	default:
		s.gi++
		s.gameRaw = g.RawLoop
		s.lastGame = g.Loop
		return g, true
	}
}

// Drop abandons the rest of one stream. The other keeps merging.
func (s *Scheduler) Drop(stream ir.Stream) {
	switch stream {
	case ir.StreamTracker:
		s.ti = len(s.tracker)
	case ir.StreamGame:
		s.gi = len(s.game)
	}
}

// Remaining returns how many events of each stream are still unmerged.
func (s *Scheduler) Remaining() (tracker, game int) {
	return len(s.tracker) - s.ti, len(s.game) - s.gi
}

// FinalLoops returns the adjusted loop of the last event taken from each
// stream.
func (s *Scheduler) FinalLoops() (tracker, game int64) {
	return s.lastTracker, s.lastGame
}
