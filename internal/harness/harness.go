package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/state"
	"github.com/roach88/loopmerge/internal/store"
)

// Harness is the test execution engine.
// It runs one scenario against a private in-memory store.
type Harness struct {
	store  *store.Store
	runIDs *engine.FixedGenerator
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Resolve the configuration overlay and decode the streams
// 2. Project the streams through the engine into a stored run
// 3. Read the trace back from the store
// 4. Evaluate assertions against the trace and the final state
//
// An error means the scenario could not run. Failed assertions are
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		runIDs: engine.NewFixedGenerator(scenario.runID()),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg, err := scenario.config()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	streams, err := scenario.Streams.Streams(cfg.SourceOptions())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: streams: %w", scenario.Name, err)
	}
	cfgJSON, err := cfg.JSON()
	if err != nil {
		return nil, err
	}

	w, err := h.store.BeginRun(ctx, store.Run{
		ID:     h.runIDs.Generate(),
		Source: "scenario:" + scenario.Name,
		Config: cfgJSON,
	})
	if err != nil {
		return nil, err
	}

	replay := state.NewReplay()
	sum, err := engine.New(w, opts...).Project(ctx, streams, replay)
	if err != nil {
		w.Rollback()
		return nil, fmt.Errorf("scenario %s: projection failed: %w", scenario.Name, err)
	}
	run, err := w.Commit(ctx, sum)
	if err != nil {
		return nil, err
	}

	deltas, err := h.store.ReadDeltas(ctx, run.ID, "")
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = run.ID
	result.Summary = sum
	result.Replay = replay
	for _, d := range deltas {
		result.AddDeltaTrace(d)
	}

	if run.Digest != sum.Digest {
		result.AddError(fmt.Sprintf("stored digest %s differs from engine digest %s", run.Digest, sum.Digest))
	}

	actx := &AssertionContext{Replay: replay, Summary: sum}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"run_id", run.ID,
		"deltas", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}
