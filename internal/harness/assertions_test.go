package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopmerge/internal/engine"
	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/state"
	"github.com/roach88/loopmerge/internal/testutil"
)

func testTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Loop: 0, Kind: ir.DeltaUnitAppeared, Path: "Unit/262144/Init"},
		{Seq: 2, Loop: 4, Kind: ir.DeltaUnitSelected, Path: "Unit/262144/Selected"},
		{Seq: 3, Loop: 9, Kind: ir.DeltaUnitRemoved, Path: "Unit/262144/Died"},
		{Seq: 4, Loop: 9, Kind: ir.DeltaDeathMarker, Path: "Death/262144/9"},
	}
}

// testReplay has marine (1,0) selected in user 0's group 2 and active
// selection, and nothing else.
func testReplay(t *testing.T) *state.Replay {
	t.Helper()
	r := state.NewReplay()
	r.Units.InitOrRegister(state.UnitSpec{
		Tag:    testutil.Tag(1, 0),
		Name:   "Marine",
		Owner:  testutil.Player(1),
		Radius: 0.75,
	}, 0)
	r.SelectionDelta(0, testutil.Tags(1))
	_, err := r.ControlGroupUpdate(0, 2, ir.OpSet)
	require.NoError(t, err)
	return r
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }

func tagPtr(index, recycle uint32) *ir.UnitTag {
	tag := testutil.Tag(index, recycle)
	return &tag
}

func TestAssertDeltaContains(t *testing.T) {
	trace := testTrace()

	assert.NoError(t, assertDeltaContains(trace, Assertion{Kind: "unit_selected"}))
	assert.NoError(t, assertDeltaContains(trace, Assertion{Path: "Death/262144/9"}))
	assert.NoError(t, assertDeltaContains(trace, Assertion{Kind: "death_marker", Path: "Death/262144/9"}))

	err := assertDeltaContains(trace, Assertion{Kind: "death_marker", Path: "Unit/262144/Died"})
	require.Error(t, err)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertDeltaContains, ae.Type)
	assert.Equal(t, "not found in trace", ae.Actual)
	assert.Len(t, ae.Trace, 4)
}

func TestAssertDeltaOrder(t *testing.T) {
	trace := testTrace()

	t.Run("in order", func(t *testing.T) {
		err := assertDeltaOrder(trace, Assertion{Paths: []string{"Unit/262144/Init", "Death/262144/9"}})
		assert.NoError(t, err)
	})

	t.Run("out of order", func(t *testing.T) {
		err := assertDeltaOrder(trace, Assertion{Paths: []string{"Unit/262144/Died", "Unit/262144/Selected"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "should be before")
	})

	t.Run("missing path", func(t *testing.T) {
		err := assertDeltaOrder(trace, Assertion{Paths: []string{"Unit/262144/Init", "Camera/0"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing path: Camera/0")
	})

	t.Run("first occurrence counts", func(t *testing.T) {
		repeated := append(testTrace(), TraceEvent{Seq: 5, Loop: 12, Kind: ir.DeltaUnitAppeared, Path: "Unit/262144/Init"})
		err := assertDeltaOrder(repeated, Assertion{Paths: []string{"Unit/262144/Selected", "Unit/262144/Init"}})
		require.Error(t, err)
	})
}

func TestAssertDeltaCount(t *testing.T) {
	trace := testTrace()

	assert.NoError(t, assertDeltaCount(trace, Assertion{Kind: "unit_selected", Count: 1}))
	assert.NoError(t, assertDeltaCount(trace, Assertion{Kind: "camera_moved", Count: 0}))
	assert.NoError(t, assertDeltaCount(trace, Assertion{Count: 4}))

	err := assertDeltaCount(trace, Assertion{Kind: "unit_removed", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 deltas of unit_removed")
	assert.Contains(t, err.Error(), "1 deltas")

	err = assertDeltaCount(trace, Assertion{Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "any kind")
}

func TestAssertRegistry(t *testing.T) {
	r := testReplay(t)

	assert.NoError(t, assertRegistryContains(r, Assertion{Tag: tagPtr(1, 0)}))
	assert.NoError(t, assertRegistryContains(r, Assertion{Tag: tagPtr(1, 0), Name: "Marine", Selected: boolPtr(true)}))

	err := assertRegistryContains(r, Assertion{Tag: tagPtr(1, 1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in registry")

	err = assertRegistryContains(r, Assertion{Tag: tagPtr(1, 0), Name: "Marauder"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `named "Marine"`)

	err = assertRegistryContains(r, Assertion{Tag: tagPtr(1, 0), Selected: boolPtr(false)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selected=true")

	assert.NoError(t, assertRegistryAbsent(r, Assertion{Tag: tagPtr(1, 1)}))
	require.Error(t, assertRegistryAbsent(r, Assertion{Tag: tagPtr(1, 0)}))

	assert.NoError(t, assertRegistryCount(r, Assertion{Count: 1}))
	err = assertRegistryCount(r, Assertion{Count: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 live units")
}

func TestAssertGroupEquals(t *testing.T) {
	r := testReplay(t)

	tests := []struct {
		name    string
		user    int64
		group   int
		tags    []ir.UnitTag
		wantErr bool
	}{
		{"set group", 0, 2, testutil.Tags(1), false},
		{"active selection", 0, state.ActiveSelection, testutil.Tags(1), false},
		{"empty group", 0, 5, nil, false},
		{"unknown user has empty groups", 9, 2, nil, false},
		{"wrong content", 0, 2, testutil.Tags(1, 2), true},
		{"unexpectedly empty", 0, 4, testutil.Tags(1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertGroupEquals(r, Assertion{User: int64Ptr(tt.user), Group: intPtr(tt.group), Tags: tt.tags})
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), AssertGroupEquals)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertUnitRadius(t *testing.T) {
	r := testReplay(t)

	// Selected units are drawn at twice their radius.
	assert.NoError(t, assertUnitRadius(r, Assertion{Tag: tagPtr(1, 0), Radius: 1.5}))

	err := assertUnitRadius(r, Assertion{Tag: tagPtr(1, 0), Radius: 0.75})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radius 1.5")

	err = assertUnitRadius(r, Assertion{Tag: tagPtr(3, 0), Radius: 0.75})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in registry")
}

func TestAssertSummary(t *testing.T) {
	sum := engine.Summary{EventsAccepted: 5, DeltasEmitted: 7, Truncated: true}

	assert.NoError(t, assertSummary(sum, Assertion{EventsAccepted: intPtr(5)}))
	assert.NoError(t, assertSummary(sum, Assertion{DeltasEmitted: intPtr(7), Truncated: boolPtr(true)}))

	err := assertSummary(sum, Assertion{EventsAccepted: intPtr(4), Truncated: boolPtr(false)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events_accepted 5, want 4")
	assert.Contains(t, err.Error(), "truncated true, want false")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = testTrace()
	actx := &AssertionContext{Replay: testReplay(t)}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertDeltaCount, Kind: "death_marker", Count: 1},
		{Type: AssertRegistryCount, Count: 1},
		{Type: AssertRegistryAbsent, Tag: tagPtr(1, 0)},
		{Type: "final_state"},
	}, actx)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], AssertRegistryAbsent)
	assert.Contains(t, errs[1], `unknown assertion type "final_state"`)
}

func TestEvaluateAssertions_StateNeedsReplay(t *testing.T) {
	result := NewResult()

	errs := EvaluateAssertions(result, []Assertion{{Type: AssertRegistryCount}}, nil)

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires replay state")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertDeltaCount,
		Expected: "2 deltas of unit_removed",
		Actual:   "1 deltas",
		Trace:    testTrace()[:1],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: delta_count")
	assert.Contains(t, msg, "Expected: 2 deltas of unit_removed")
	assert.Contains(t, msg, "[1] loop 0 unit_appeared Unit/262144/Init")
}
