package store

import (
	"context"
	"testing"
)

func TestCheckRun_Intact(t *testing.T) {
	s := createTestStore(t)
	written := writeTestRun(t, s, "run-1", 4)

	state, err := s.CheckRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("CheckRun() failed: %v", err)
	}
	if !state.IsIntact {
		t.Errorf("IsIntact = false, state = %+v", state)
	}
	if state.Digest != written.Digest {
		t.Errorf("digest = %q, want %q", state.Digest, written.Digest)
	}
	if state.LastSeq != 4 || state.Deltas != 4 || state.Gaps != 0 {
		t.Errorf("state = %+v", state)
	}
}

func TestCheckRun_EmptyRun(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 0)

	state, err := s.CheckRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("CheckRun() failed: %v", err)
	}
	if !state.IsIntact {
		t.Errorf("empty committed run should be intact: %+v", state)
	}
}

func TestCheckRun_DetectsTamperedPayload(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 3)

	_, err := s.db.Exec(`
		UPDATE deltas SET payload = replace(payload, '"Marine"', '"Marauder"')
		WHERE run_id = ? AND seq = 2
	`, "run-1")
	if err != nil {
		t.Fatalf("tamper failed: %v", err)
	}

	state, err := s.CheckRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("CheckRun() failed: %v", err)
	}
	if state.IsIntact {
		t.Error("IsIntact = true after tampering")
	}
	if state.Mismatched != 1 {
		t.Errorf("Mismatched = %d, want 1", state.Mismatched)
	}
}

func TestCheckRun_DetectsGap(t *testing.T) {
	s := createTestStore(t)
	writeTestRun(t, s, "run-1", 3)

	if _, err := s.db.Exec(`DELETE FROM deltas WHERE run_id = ? AND seq = 2`, "run-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	state, err := s.CheckRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("CheckRun() failed: %v", err)
	}
	if state.Gaps != 1 {
		t.Errorf("Gaps = %d, want 1", state.Gaps)
	}
	if state.IsIntact {
		t.Error("IsIntact = true with a missing seq")
	}
}

func TestCheckRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.CheckRun(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing run, got nil")
	}
}

func TestGetLastSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.GetLastSeq(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("GetLastSeq() on empty = %d, want 0", seq)
	}

	writeTestRun(t, s, "run-1", 7)
	seq, err = s.GetLastSeq(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetLastSeq() failed: %v", err)
	}
	if seq != 7 {
		t.Errorf("GetLastSeq() = %d, want 7", seq)
	}
}
