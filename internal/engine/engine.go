package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/metrics"
	"github.com/roach88/loopmerge/internal/sink"
	"github.com/roach88/loopmerge/internal/state"
)

// Engine runs the single forward pass: merge, filter, project, emit.
//
// An Engine holds configuration only. Each call to Run or Project builds its
// own scheduler, budget and clock, so one Engine may run many matches one
// after another. A single call is strictly sequential: an event's state
// mutations and deltas complete before the next event is merged.
type Engine struct {
	sink         sink.Sink
	filters      Filters
	scale        ir.Scale
	ratio        float64
	includeStats bool
	maxEvents    int
	maxTracker   int
	maxGame      int
	metrics      *metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithFilters sets the filter pipeline.
func WithFilters(f Filters) Option {
	return func(e *Engine) {
		e.filters = f
	}
}

// WithScale sets the source-to-world coordinate ratios.
func WithScale(s ir.Scale) Option {
	return func(e *Engine) {
		e.scale = s
	}
}

// WithTrackerLoopRatio sets the tracker-to-game loop ratio.
//
// Default: DefaultTrackerLoopRatio. Non-positive values keep the default.
func WithTrackerLoopRatio(r float64) Option {
	return func(e *Engine) {
		if r > 0 {
			e.ratio = r
		}
	}
}

// WithIncludeStats enables stat_point deltas for PlayerStats events.
func WithIncludeStats(include bool) Option {
	return func(e *Engine) {
		e.includeStats = include
	}
}

// WithMaxEvents caps applied events overall and per stream. Zero is unlimited.
//
// Use WithMaxEvents(100, 0, 0) to stop after 100 events.
// Use WithMaxEvents(0, 50, 0) to take 50 tracker events and every game event.
func WithMaxEvents(total, tracker, game int) Option {
	return func(e *Engine) {
		e.maxEvents = total
		e.maxTracker = tracker
		e.maxGame = game
	}
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine emitting to s. A nil sink discards deltas.
func New(s sink.Sink, opts ...Option) *Engine {
	if s == nil {
		s = sink.Discard
	}
	e := &Engine{
		sink:  s,
		scale: ir.DefaultScale(),
		ratio: DefaultTrackerLoopRatio,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Summary reports what a run did.
type Summary struct {
	EventsMerged     int   `json:"events_merged"`
	EventsAccepted   int   `json:"events_accepted"`
	DeltasEmitted    int   `json:"deltas_emitted"`
	FinalTrackerLoop int64 `json:"final_tracker_loop"`
	FinalGameLoop    int64 `json:"final_game_loop"`
	LiveUnits        int   `json:"live_units"`

	// Digest fingerprints every emitted delta in order. Equal inputs and
	// configuration give equal digests.
	Digest string `json:"digest"`

	// Truncated is set when a max-event or max-loop limit ended the pass
	// before both streams were exhausted.
	Truncated bool `json:"truncated"`
}

// Run projects streams onto a fresh replay state.
func (e *Engine) Run(ctx context.Context, streams ir.Streams) (Summary, error) {
	return e.Project(ctx, streams, state.NewReplay())
}

// Project projects streams onto replay, which the caller owns and may
// inspect afterwards.
//
// Benign inconsistencies are logged and skipped. The only error returned is
// a sink failure (a *RuntimeError with ErrCodeSinkFailed) or ctx's error;
// in both cases the summary covers everything applied before the failure,
// and nothing already applied is undone.
func (e *Engine) Project(ctx context.Context, streams ir.Streams, replay *state.Replay) (Summary, error) {
	sched := NewScheduler(streams, SchedulerOptions{
		TrackerLoopRatio: e.ratio,
		Class:            e.filters.Class,
	})
	budget := NewBudget(e.maxEvents, e.maxTracker, e.maxGame)
	p := newProjector(replay, e.sink, e.scale, e.includeStats, e.metrics)

	slog.Info("projection starting",
		"tracker_events", len(streams.Tracker),
		"game_events", len(streams.Game),
		"tracker_loop_ratio", e.ratio,
		"event_class", string(e.filters.Class),
	)

	var sum Summary
	finish := func() Summary {
		sum.DeltasEmitted = p.emitted
		sum.FinalTrackerLoop, sum.FinalGameLoop = sched.FinalLoops()
		sum.LiveUnits = replay.Units.Len()
		sum.Digest = p.digest.Sum()
		return sum
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		step, ok := sched.Next()
		if !ok {
			break
		}
		sum.EventsMerged++
		e.metrics.EventMerged(step.Stream.String())

		if e.filters.PastEnd(step) {
			slog.Debug("max loop reached", "loop", step.Loop)
			sum.Truncated = true
			break
		}
		if !e.filters.Accept(step) {
			e.metrics.EventFiltered(step.Stream.String())
			continue
		}

		if err := budget.Take(step.Stream); err != nil {
			var be *BudgetExhaustedError
			if !errors.As(err, &be) {
				return finish(), err
			}
			sum.Truncated = true
			if be.Stream == nil {
				slog.Info("event budget exhausted", "limit", be.Limit, "loop", step.Loop)
				break
			}
			slog.Debug("stream budget exhausted", "stream", be.Stream.String(), "limit", be.Limit)
			sched.Drop(*be.Stream)
			continue
		}

		sum.EventsAccepted++
		e.metrics.EventAccepted(step.Stream.String(), step.Loop)

		if err := p.apply(ctx, step); err != nil {
			slog.Error("projection aborted",
				"loop", step.Loop,
				"stream", step.Stream.String(),
				"index", step.Index,
				"error", err,
			)
			return finish(), err
		}
	}

	out := finish()
	slog.Info("projection finished",
		"events_merged", out.EventsMerged,
		"events_accepted", out.EventsAccepted,
		"deltas", out.DeltasEmitted,
		"live_units", out.LiveUnits,
		"truncated", out.Truncated,
	)
	return out, nil
}
