package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/sink"
)

// Run describes one projection run.
type Run struct {
	ID     string
	Seq    int64
	Source string

	// Config is the JSON configuration the run was projected with.
	Config json.RawMessage

	EngineVersion string
	DeltaVersion  string
	Status        RunStatus

	// Digest chains every stored delta ID in seq order.
	Digest     string
	DeltaCount int64

	// Summary is the engine's JSON run summary.
	Summary json.RawMessage
}

// RunStatus is the lifecycle state of a run row.
type RunStatus string

const (
	RunOpen      RunStatus = "open"
	RunCommitted RunStatus = "committed"
)

// ErrOutOfOrder is returned when a delta's seq does not advance.
var ErrOutOfOrder = errors.New("delta seq out of order")

// RunWriter streams one run's deltas into the store. It implements
// sink.Sink, so the engine can write to the store directly.
//
// The writer holds one transaction for the whole run; the store is not
// usable by other callers until Commit or Rollback. It is not safe for
// concurrent use.
type RunWriter struct {
	tx      *sql.Tx
	run     Run
	stmt    *sql.Stmt
	digest  *ir.Digest
	lastSeq int64
	closed  bool
}

var _ sink.Sink = (*RunWriter)(nil)

// BeginRun inserts an open run row and returns a writer for its deltas.
// Versions default to the current ir versions when empty.
func (s *Store) BeginRun(ctx context.Context, run Run) (*RunWriter, error) {
	if run.ID == "" {
		return nil, fmt.Errorf("begin run: empty run id")
	}
	if run.EngineVersion == "" {
		run.EngineVersion = ir.EngineVersion
	}
	if run.DeltaVersion == "" {
		run.DeltaVersion = ir.DeltaVersion
	}

	configJSON, err := marshalDocument(run.Config)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run: begin tx: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, source, config, engine_version, delta_version, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Seq,
		run.Source,
		configJSON,
		run.EngineVersion,
		run.DeltaVersion,
		string(RunOpen),
	)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin run: insert: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO deltas
		(run_id, seq, loop, kind, path, id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("begin run: prepare: %w", err)
	}

	run.Config = json.RawMessage(configJSON)
	run.Status = RunOpen
	return &RunWriter{
		tx:     tx,
		run:    run,
		stmt:   stmt,
		digest: ir.NewDigest(),
	}, nil
}

// Run returns the run as currently written.
func (w *RunWriter) Run() Run {
	r := w.run
	r.DeltaCount = int64(w.digest.Count())
	r.Digest = w.digest.Sum()
	return r
}

// Emit stores one delta. Seqs must strictly increase.
func (w *RunWriter) Emit(ctx context.Context, d ir.Delta) error {
	if w.closed {
		return sink.ErrClosed
	}
	if d.Seq <= w.lastSeq {
		return fmt.Errorf("write delta seq %d after %d: %w", d.Seq, w.lastSeq, ErrOutOfOrder)
	}

	id, err := ir.DeltaID(d)
	if err != nil {
		return fmt.Errorf("write delta: %w", err)
	}
	payload, err := marshalDelta(d)
	if err != nil {
		return fmt.Errorf("write delta: %w", err)
	}

	_, err = w.stmt.ExecContext(ctx,
		w.run.ID,
		d.Seq,
		d.Loop,
		string(d.Kind),
		d.Path,
		id,
		payload,
	)
	if err != nil {
		return fmt.Errorf("write delta: %w", err)
	}

	w.lastSeq = d.Seq
	w.digest.Add(id)
	return nil
}

// Commit records the digest, delta count and summary, marks the run
// committed and ends the transaction. summary is marshaled to JSON; a
// json.RawMessage is stored as-is.
func (w *RunWriter) Commit(ctx context.Context, summary any) (Run, error) {
	if w.closed {
		return Run{}, sink.ErrClosed
	}
	w.closed = true
	defer w.stmt.Close()

	summaryJSON, err := marshalDocument(summary)
	if err != nil {
		w.tx.Rollback()
		return Run{}, fmt.Errorf("commit run: %w", err)
	}

	run := w.Run()
	run.Status = RunCommitted
	run.Summary = json.RawMessage(summaryJSON)

	_, err = w.tx.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, digest = ?, delta_count = ?, summary = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.Digest,
		run.DeltaCount,
		summaryJSON,
		run.ID,
	)
	if err != nil {
		w.tx.Rollback()
		return Run{}, fmt.Errorf("commit run: update: %w", err)
	}

	if err := w.tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit run: %w", err)
	}

	slog.Debug("run committed",
		"run_id", run.ID,
		"deltas", run.DeltaCount,
		"digest", run.Digest,
	)
	return run, nil
}

// Rollback discards the run and every delta written to it. Calling it
// after Commit or a previous Rollback is a no-op.
func (w *RunWriter) Rollback() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.stmt.Close()
	if err := w.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback run: %w", err)
	}
	return nil
}

// DeleteRun removes a committed run and its deltas. Deleting an unknown
// run is not an error.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}
