package store

import (
	"context"
	"fmt"

	"github.com/roach88/loopmerge/internal/ir"
)

// RunState is the result of re-reading a stored run and checking it
// against what was recorded at commit time.
type RunState struct {
	Run Run

	// Deltas is the number of delta rows actually stored.
	Deltas int64

	// LastSeq is the highest stored seq, 0 for an empty run.
	LastSeq int64

	// Gaps counts missing seqs between 1 and LastSeq.
	Gaps int64

	// Digest is recomputed from the stored payloads, not the stored IDs.
	Digest string

	// Mismatched counts rows whose stored ID differs from the ID
	// recomputed from the payload.
	Mismatched int

	// IsIntact is true when the run is committed, has no gaps or
	// mismatched rows, and its recomputed digest equals the recorded one.
	IsIntact bool
}

// CheckRun re-hashes every stored delta of a run and compares the result
// with the digest recorded at commit time.
func (s *Store) CheckRun(ctx context.Context, runID string) (RunState, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return RunState{}, fmt.Errorf("check run: %w", err)
	}
	state := RunState{Run: run}

	stored, err := s.ReadStoredDeltas(ctx, runID, "")
	if err != nil {
		return state, fmt.Errorf("check run: %w", err)
	}

	digest := ir.NewDigest()
	for _, sd := range stored {
		id, err := ir.DeltaID(sd.Delta)
		if err != nil {
			return state, fmt.Errorf("check run: seq %d: %w", sd.Delta.Seq, err)
		}
		if id != sd.ID {
			state.Mismatched++
		}
		digest.Add(id)
		if sd.Delta.Seq > state.LastSeq {
			state.LastSeq = sd.Delta.Seq
		}
	}

	state.Deltas = int64(len(stored))
	state.Gaps = state.LastSeq - state.Deltas
	state.Digest = digest.Sum()
	state.IsIntact = run.Status == RunCommitted &&
		state.Gaps == 0 &&
		state.Mismatched == 0 &&
		state.Deltas == run.DeltaCount &&
		state.Digest == run.Digest

	return state, nil
}

// GetLastSeq returns the highest delta seq stored for a run, 0 if none.
func (s *Store) GetLastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM deltas WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}
