package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// Digest and run id are left out so a snapshot only changes when the
// projected deltas or the summary counts change.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Summary      engine.Summary `json:"summary"`
	Trace        []TraceEvent   `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles primitives, slices and maps.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		traceList[i] = map[string]any{
			"seq":  event.Seq,
			"loop": event.Loop,
			"kind": string(event.Kind),
			"path": event.Path,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"summary": map[string]any{
			"events_merged":      s.Summary.EventsMerged,
			"events_accepted":    s.Summary.EventsAccepted,
			"deltas_emitted":     s.Summary.DeltasEmitted,
			"final_tracker_loop": s.Summary.FinalTrackerLoop,
			"final_game_loop":    s.Summary.FinalGameLoop,
			"live_units":         s.Summary.LiveUnits,
			"truncated":          s.Summary.Truncated,
		},
		"trace": traceList,
	}
}

// Snapshot renders result as canonical JSON.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Summary:      result.Summary,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
