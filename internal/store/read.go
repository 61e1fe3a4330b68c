package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/loopmerge/internal/ir"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// StoredDelta is a delta together with its content-addressed ID.
type StoredDelta struct {
	ID    string
	Delta ir.Delta
}

// ReadDeltas returns a run's deltas in seq order. An empty kind returns
// every kind.
//
// Returns an empty slice (not nil) if the run has no matching deltas.
func (s *Store) ReadDeltas(ctx context.Context, runID string, kind ir.DeltaKind) ([]ir.Delta, error) {
	stored, err := s.ReadStoredDeltas(ctx, runID, kind)
	if err != nil {
		return nil, err
	}
	deltas := make([]ir.Delta, len(stored))
	for i, sd := range stored {
		deltas[i] = sd.Delta
	}
	return deltas, nil
}

// ReadStoredDeltas is ReadDeltas with each delta's stored ID.
func (s *Store) ReadStoredDeltas(ctx context.Context, runID string, kind ir.DeltaKind) ([]StoredDelta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload
		FROM deltas
		WHERE run_id = ? AND (? = '' OR kind = ?)
		ORDER BY seq ASC
	`, runID, string(kind), string(kind))
	if err != nil {
		return nil, fmt.Errorf("query deltas: %w", err)
	}
	defer rows.Close()

	deltas := []StoredDelta{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan delta: %w", err)
		}
		d, err := unmarshalDelta(payload)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, StoredDelta{ID: id, Delta: d})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deltas: %w", err)
	}
	return deltas, nil
}

// ReadPath returns every delta a run emitted for one entity path, in seq
// order.
func (s *Store) ReadPath(ctx context.Context, runID, path string) ([]ir.Delta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM deltas
		WHERE run_id = ? AND path = ?
		ORDER BY seq ASC
	`, runID, path)
	if err != nil {
		return nil, fmt.Errorf("query path: %w", err)
	}
	defer rows.Close()

	deltas := []ir.Delta{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan delta: %w", err)
		}
		d, err := unmarshalDelta(payload)
		if err != nil {
			return nil, err
		}
		deltas = append(deltas, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path: %w", err)
	}
	return deltas, nil
}

// CountByKind returns how many deltas of each kind a run holds.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[ir.DeltaKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM deltas
		WHERE run_id = ?
		GROUP BY kind
		ORDER BY kind COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count deltas: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.DeltaKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[ir.DeltaKind(kind)] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// GetRun retrieves a run by ID. Returns ErrRunNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, source, config, engine_version, delta_version, status, digest, delta_count, summary
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %q: %w", id, ErrRunNotFound)
	}
	return run, err
}

// LatestRun returns the most recently begun committed run.
// Returns ErrRunNotFound if the store has none.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, source, config, engine_version, delta_version, status, digest, delta_count, summary
		FROM runs
		WHERE status = ?
		ORDER BY seq DESC
		LIMIT 1
	`, string(RunCommitted))

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns every run ordered by seq ASC, id ASC.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, source, config, engine_version, delta_version, status, digest, delta_count, summary
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run             Run
		status          string
		config, summary string
	)
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.Source,
		&config,
		&run.EngineVersion,
		&run.DeltaVersion,
		&status,
		&run.Digest,
		&run.DeltaCount,
		&summary,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)
	run.Config = json.RawMessage(config)
	run.Summary = json.RawMessage(summary)
	return run, nil
}
