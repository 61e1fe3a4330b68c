package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with the matching golden file.
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.Summary = engine.Summary{
		EventsMerged:     2,
		EventsAccepted:   2,
		DeltasEmitted:    1,
		FinalTrackerLoop: 7,
		Digest:           "not-included",
	}
	result.AddDeltaTrace(ir.Delta{Seq: 1, Loop: 7, Kind: ir.DeltaCameraMoved, Path: "Camera/1"})

	got, err := Snapshot("tiny", result)
	require.NoError(t, err)

	want := `{"scenario_name":"tiny","summary":{"deltas_emitted":1,"events_accepted":2,"events_merged":2,` +
		`"final_game_loop":0,"final_tracker_loop":7,"live_units":0,"truncated":false},` +
		`"trace":[{"kind":"camera_moved","loop":7,"path":"Camera/1","seq":1}]}`
	assert.Equal(t, want, string(got))
}

func TestSnapshot_EmptyTrace(t *testing.T) {
	got, err := Snapshot("empty", NewResult())
	require.NoError(t, err)
	assert.Contains(t, string(got), `"trace":[]`)
}
