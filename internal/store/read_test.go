package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/roach88/loopmerge/internal/ir"
)

func TestReadDeltas_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 5)

	deltas, err := s.ReadDeltas(context.Background(), "run-1", "")
	if err != nil {
		t.Fatalf("ReadDeltas() failed: %v", err)
	}
	if len(deltas) != 5 {
		t.Fatalf("len = %d, want 5", len(deltas))
	}
	for i, d := range deltas {
		if d.Seq != int64(i+1) {
			t.Errorf("deltas[%d].Seq = %d, want %d", i, d.Seq, i+1)
		}
	}
}

func TestReadDeltas_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 1)

	deltas, err := s.ReadDeltas(context.Background(), "run-1", "")
	if err != nil {
		t.Fatalf("ReadDeltas() failed: %v", err)
	}
	want := createTestDelta(1, 1)
	if !reflect.DeepEqual(deltas[0], want) {
		t.Errorf("delta = %+v, want %+v", deltas[0], want)
	}
}

func TestReadDeltas_FilterByKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	w, err := s.BeginRun(ctx, createTestRun("run-1"))
	if err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	appeared := createTestDelta(1, 1)
	camera := ir.Delta{Seq: 2, Loop: 20, Kind: ir.DeltaCameraMoved, Path: "Camera/1"}
	for _, d := range []ir.Delta{appeared, camera} {
		if err := w.Emit(ctx, d); err != nil {
			t.Fatalf("Emit() failed: %v", err)
		}
	}
	if _, err := w.Commit(ctx, nil); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	deltas, err := s.ReadDeltas(ctx, "run-1", ir.DeltaCameraMoved)
	if err != nil {
		t.Fatalf("ReadDeltas() failed: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Path != "Camera/1" {
		t.Errorf("deltas = %+v, want only Camera/1", deltas)
	}

	counts, err := s.CountByKind(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountByKind() failed: %v", err)
	}
	want := map[ir.DeltaKind]int64{ir.DeltaUnitAppeared: 1, ir.DeltaCameraMoved: 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}
}

func TestReadDeltas_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	deltas, err := s.ReadDeltas(context.Background(), "missing", "")
	if err != nil {
		t.Fatalf("ReadDeltas() failed: %v", err)
	}
	if deltas == nil {
		t.Error("ReadDeltas() returned nil, want empty slice")
	}
}

func TestReadPath(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 3)

	path := createTestDelta(2, 2).Path
	deltas, err := s.ReadPath(context.Background(), "run-1", path)
	if err != nil {
		t.Fatalf("ReadPath() failed: %v", err)
	}
	if len(deltas) != 1 || deltas[0].Seq != 2 {
		t.Errorf("ReadPath(%q) = %+v, want seq 2 only", path, deltas)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestGetRun_Committed(t *testing.T) {
	s := createTestStore(t)
	written := writeTestRun(t, s, "run-1", 2)

	run, err := s.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if !reflect.DeepEqual(run, written) {
		t.Errorf("GetRun() = %+v, want %+v", run, written)
	}
	if string(run.Config) != `{"include_stats":false}` {
		t.Errorf("config = %s", run.Config)
	}
}

func TestListRuns_Ordered(t *testing.T) {
	s := createTestStore(t)
	for _, id := range []string{"zeta", "alpha", "mid"} {
		writeTestRun(t, s, id, 1)
	}

	runs, err := s.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}

	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	want := []string{"zeta", "alpha", "mid"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v (begin order)", ids, want)
	}
}

func TestLatestRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("LatestRun() on empty store error = %v, want ErrRunNotFound", err)
	}

	writeTestRun(t, s, "first", 1)
	writeTestRun(t, s, "second", 1)

	run, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if run.ID != "second" {
		t.Errorf("LatestRun() = %q, want %q", run.ID, "second")
	}
}
