package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/loopmerge/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run description with minimal required fields.
func createTestRun(id string) Run {
	return Run{
		ID:     id,
		Source: "testdata/" + id + ".yaml",
		Config: json.RawMessage(`{"include_stats":false}`),
	}
}

// createTestDelta creates a unit_appeared delta at seq.
func createTestDelta(seq int64, index uint32) ir.Delta {
	tag := ir.NewUnitTag(index, 0)
	return ir.Delta{
		Seq:      seq,
		Loop:     seq * 16,
		Kind:     ir.DeltaUnitAppeared,
		Path:     "Unit/" + tag.String() + "/Init",
		Tag:      &tag,
		Position: ir.Vec3{X: float64(index), Y: -1.5},
		Color:    ir.ColorLightBlue,
		Radius:   0.75,
		Label:    "Marine",
	}
}

// writeTestRun begins, fills and commits a run of n deltas.
func writeTestRun(t *testing.T, s *Store, id string, n int) Run {
	t.Helper()
	ctx := context.Background()

	w, err := s.BeginRun(ctx, createTestRun(id))
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	for i := 1; i <= n; i++ {
		if err := w.Emit(ctx, createTestDelta(int64(i), uint32(i))); err != nil {
			t.Fatalf("Emit(%d) failed: %v", i, err)
		}
	}
	run, err := w.Commit(ctx, map[string]any{"deltas": n})
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	return run
}
